package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/adapters/rtc"
	"github.com/dkeye/voicelink/internal/audio"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/metrics"
	"github.com/dkeye/voicelink/internal/negotiation"
	"github.com/dkeye/voicelink/internal/playback"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Identity       domain.Identity
	Channel        domain.ChannelName
	ReconnectDelay time.Duration
	// Relay sends audio as audio-frame envelopes instead of peer media.
	Relay  bool
	WebRTC webrtc.Configuration
	// Capture may be nil, in which case the client only receives.
	Capture audio.Capture
	Player  *playback.Scheduler
	Metrics *metrics.ClientMetrics
	OnText  TextHandler
}

// Client runs the event loop: inbound envelopes, media callbacks and user
// commands are all handled on one goroutine.
type Client struct {
	opts   Options
	dialer Dialer
	core   *Core
	events chan func()

	linkMu sync.RWMutex
	link   Link

	connMu sync.Mutex
	conns  map[domain.Identity]*rtc.WebRTCConnection

	// ctx is set once in New and ends when Run returns.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(dialer Dialer, opts Options) *Client {
	c := &Client{
		opts:   opts,
		dialer: dialer,
		events: make(chan func(), 256),
		conns:  make(map[domain.Identity]*rtc.WebRTCConnection),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.core = NewCore(CoreOptions{
		Local:   opts.Identity,
		Out:     linkOutbox{c},
		Media:   c.newMedia,
		Player:  opts.Player,
		Metrics: opts.Metrics,
		Relay:   opts.Relay,
		OnText:  opts.OnText,
	})
	return c
}

type linkOutbox struct{ c *Client }

func (o linkOutbox) Send(h protocol.Header, m protocol.Message) error {
	o.c.linkMu.RLock()
	l := o.c.link
	o.c.linkMu.RUnlock()
	if l == nil {
		return ErrOffline
	}
	data, err := protocol.Encode(h, m)
	if err != nil {
		return err
	}
	return l.Send(data)
}

// Run connects, joins the configured channel and keeps reconnecting with a
// fixed delay until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer c.cancel()
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	if c.opts.Capture != nil {
		go c.captureLoop(ctx)
	} else {
		log.Info().Str("module", "client").Msg("no capture device, receive-only")
	}

	first := true
	for {
		link, err := c.dialer.Dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Dur("retry_in", c.opts.ReconnectDelay).Msg("connect failed")
		} else {
			c.setLink(link)
			if first {
				err = c.core.Join(c.opts.Channel)
				first = false
			} else {
				err = c.core.Rejoin()
			}
			if err != nil {
				log.Error().Err(err).Str("module", "client").Msg("join channel")
			}
			c.serve(ctx, link)
			c.setLink(nil)
			_ = link.Close()
			c.core.Disconnected()
		}

		if ctx.Err() != nil {
			c.shutdown()
			return nil
		}
		c.opts.Metrics.Reconnect()
		if !c.wait(ctx, c.opts.ReconnectDelay) {
			c.shutdown()
			return nil
		}
	}
}

// wait blocks for d and reports false when ctx ends first.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) serve(ctx context.Context, link Link) {
	msgs := link.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				log.Warn().Str("module", "client").Msg("signaling link lost")
				return
			}
			in, err := protocol.Decode(data)
			if err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("bad envelope")
				continue
			}
			c.core.Handle(in)
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Client) setLink(l Link) {
	c.linkMu.Lock()
	c.link = l
	c.linkMu.Unlock()
}

func (c *Client) shutdown() {
	c.core.Disconnected()
	if c.opts.Player != nil {
		c.opts.Player.Close()
	}
	if c.opts.Capture != nil {
		_ = c.opts.Capture.Close()
	}
}

// post queues fn onto the event loop. It gives up when the client stops.
func (c *Client) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.ctx.Done():
	}
}

// Do runs fn on the event loop and waits for its result. Commands issued
// while disconnected wait for the next connection.
func (c *Client) Do(ctx context.Context, fn func(*Core) error) error {
	done := make(chan error, 1)
	select {
	case c.events <- func() { done <- fn(c.core) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) JoinChannel(ctx context.Context, name domain.ChannelName) error {
	return c.Do(ctx, func(core *Core) error { return core.Join(name) })
}

func (c *Client) LeaveChannel(ctx context.Context) error {
	return c.Do(ctx, func(core *Core) error { return core.Leave() })
}

func (c *Client) SendText(ctx context.Context, text string) error {
	return c.Do(ctx, func(core *Core) error { return core.SendText(text) })
}

// SetMuted stops or resumes outgoing audio on every peer connection.
func (c *Client) SetMuted(muted bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	for _, conn := range c.conns {
		if out := conn.Out(); out != nil {
			if muted {
				out.MarkMuted()
			} else {
				out.MarkOk()
			}
		}
	}
}

func (c *Client) newMedia(remote domain.Identity) (negotiation.Media, error) {
	var conn *rtc.WebRTCConnection
	conn, err := rtc.NewWebRTCConnection(c.opts.WebRTC, rtc.Options{
		Peer: remote,
		Send: c.opts.Capture != nil,
		OnCandidate: func(hint protocol.Blob) {
			go c.post(func() { c.core.LocalHint(remote, conn, hint) })
		},
		OnTrack: func(ctx context.Context, track *webrtc.TrackRemote) {
			logger := log.With().Str("module", "client.media").Str("peer", string(remote)).Logger()
			go rtc.ReadAudio(ctx, track, func(samples []float32, rate int) {
				c.post(func() { c.core.PeerAudio(remote, conn, samples, rate) })
			}, &logger)
		},
		OnClosed: func() {
			c.forget(remote, conn)
			go c.post(func() { c.core.PeerClosed(remote, conn) })
		},
	})
	if err != nil {
		return nil, err
	}
	conn.Start(c.ctx)

	c.connMu.Lock()
	c.conns[remote] = conn
	c.connMu.Unlock()
	return conn, nil
}

func (c *Client) forget(remote domain.Identity, conn *rtc.WebRTCConnection) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conns[remote] == conn {
		delete(c.conns, remote)
	}
}

// captureLoop paces capture frames in real time and publishes them on the
// configured audio path.
func (c *Client) captureLoop(ctx context.Context) {
	src := c.opts.Capture
	rate := src.SampleRate()
	ticker := time.NewTicker(audio.Duration(audio.FrameSamples, rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, err := src.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Str("module", "client.capture").Msg("capture read")
			}
			log.Info().Str("module", "client.capture").Msg("capture ended")
			return
		}
		if c.opts.Relay {
			pcm := audio.EncodePCM16(frame)
			c.post(func() {
				if err := c.core.SendAudio(pcm, rate); err != nil && !errors.Is(err, ErrBackpressure) {
					log.Warn().Err(err).Str("module", "client.capture").Msg("send audio frame")
				}
			})
			continue
		}
		c.writeTracks(frame, rate)
	}
}

func (c *Client) writeTracks(frame []float32, rate int) {
	c.connMu.Lock()
	conns := make([]*rtc.WebRTCConnection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.connMu.Unlock()
	for _, conn := range conns {
		if out := conn.Out(); out != nil {
			if err := out.WriteSamples(frame, rate); err != nil {
				log.Debug().Err(err).Str("module", "client.capture").Msg("write rtp")
			}
		}
	}
}
