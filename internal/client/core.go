// Package client is the participant side: it owns the signaling link, the
// current channel, the peer sessions of that channel and local playback.
package client

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/metrics"
	"github.com/dkeye/voicelink/internal/negotiation"
	"github.com/dkeye/voicelink/internal/playback"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrNotJoined = errors.New("not in a channel")

// Outbox sends envelopes to the relay.
type Outbox interface {
	Send(h protocol.Header, m protocol.Message) error
}

// MediaFactory opens the media connection for a new peer session.
type MediaFactory func(remote domain.Identity) (negotiation.Media, error)

// TextHandler receives chat messages of the current channel.
type TextHandler func(from domain.Identity, content string, sentAt time.Time)

// Core is the envelope dispatcher. It is not safe for concurrent use: Client
// calls it from a single event loop.
type Core struct {
	local   domain.Identity
	channel domain.ChannelName
	joined  bool
	roster  map[domain.Identity]struct{}

	out      Outbox
	sessions *negotiation.Registry
	player   *playback.Scheduler
	metrics  *metrics.ClientMetrics

	// Relay is true when audio travels as audio-frame envelopes.
	relay  bool
	onText TextHandler
}

type CoreOptions struct {
	Local   domain.Identity
	Out     Outbox
	Media   MediaFactory
	Player  *playback.Scheduler
	Metrics *metrics.ClientMetrics
	Relay   bool
	OnText  TextHandler
}

func NewCore(opts CoreOptions) *Core {
	c := &Core{
		local:   opts.Local,
		roster:  make(map[domain.Identity]struct{}),
		out:     opts.Out,
		player:  opts.Player,
		metrics: opts.Metrics,
		relay:   opts.Relay,
		onText:  opts.OnText,
	}
	c.sessions = negotiation.NewRegistry(opts.Local, func(remote domain.Identity) (*negotiation.Session, error) {
		media, err := opts.Media(remote)
		if err != nil {
			return nil, err
		}
		return negotiation.NewSession(opts.Local, remote, media, peerSender{c}), nil
	})
	return c
}

// peerSender addresses negotiation envelopes within the current channel.
type peerSender struct{ c *Core }

func (p peerSender) Send(target domain.Identity, m protocol.Message) error {
	return p.c.out.Send(protocol.Header{Sender: p.c.local, Channel: p.c.channel, Target: target}, m)
}

func (c *Core) Local() domain.Identity          { return c.local }
func (c *Core) Channel() domain.ChannelName     { return c.channel }
func (c *Core) Sessions() *negotiation.Registry { return c.sessions }

// Roster returns the known members of the current channel, sorted.
func (c *Core) Roster() []domain.Identity {
	out := make([]domain.Identity, 0, len(c.roster))
	for id := range c.roster {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Join switches to channel: the old channel is left, every session closed,
// and a join is announced for the new one.
func (c *Core) Join(channel domain.ChannelName) error {
	if c.joined {
		if err := c.out.Send(protocol.Header{Sender: c.local, Channel: c.channel}, protocol.Leave{}); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("send leave")
		}
	}
	c.teardown(channel)
	c.joined = true
	log.Info().Str("module", "client").Str("channel", string(channel)).Msg("joining channel")
	return c.out.Send(protocol.Header{Sender: c.local, Channel: channel}, protocol.Join{})
}

// Disconnected drops all channel state after the signaling link is lost.
// The channel is remembered for Rejoin.
func (c *Core) Disconnected() {
	c.teardown(c.channel)
}

// Rejoin announces the current channel again after a reconnect.
func (c *Core) Rejoin() error {
	if !c.joined {
		return nil
	}
	c.teardown(c.channel)
	log.Info().Str("module", "client").Str("channel", string(c.channel)).Msg("rejoining channel")
	return c.out.Send(protocol.Header{Sender: c.local, Channel: c.channel}, protocol.Join{})
}

func (c *Core) teardown(next domain.ChannelName) {
	c.sessions.Reset(next)
	c.channel = next
	clear(c.roster)
	if c.player != nil {
		c.player.Reset()
	}
	c.metrics.Sessions(0)
}

// Leave exits the current channel without joining another.
func (c *Core) Leave() error {
	if !c.joined {
		return ErrNotJoined
	}
	err := c.out.Send(protocol.Header{Sender: c.local, Channel: c.channel}, protocol.Leave{})
	c.teardown(c.channel)
	c.joined = false
	return err
}

func (c *Core) SendText(content string) error {
	if !c.joined {
		return ErrNotJoined
	}
	if err := domain.ValidateText(content); err != nil {
		return err
	}
	return c.out.Send(protocol.Header{Sender: c.local, Channel: c.channel}, protocol.TextMessage{Content: content})
}

// SendAudio publishes a captured PCM16 frame on the relay path.
func (c *Core) SendAudio(pcm []byte, rate int) error {
	if !c.joined || !c.relay {
		return nil
	}
	return c.out.Send(protocol.Header{Sender: c.local, Channel: c.channel}, protocol.AudioFrame{Samples: pcm, SampleRate: rate})
}

// LocalHint forwards a connectivity hint gathered by media to remote.
func (c *Core) LocalHint(remote domain.Identity, media negotiation.Media, hint protocol.Blob) {
	s, ok := c.live(remote, media)
	if !ok {
		return
	}
	if err := s.SendLocalHint(hint); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("send hint")
	}
}

// PeerAudio schedules decoded samples received over a track of media.
func (c *Core) PeerAudio(remote domain.Identity, media negotiation.Media, samples []float32, rate int) {
	if _, ok := c.live(remote, media); !ok || c.player == nil {
		return
	}
	c.schedule(remote, func() (time.Duration, error) {
		return c.player.DeliverSamples(remote, playback.Frame{Samples: samples, SampleRate: rate})
	})
}

// PeerClosed handles a media connection that failed on its own. Reports for
// connections that no longer back the live session are stale and ignored.
func (c *Core) PeerClosed(remote domain.Identity, media negotiation.Media) {
	if _, ok := c.live(remote, media); !ok {
		return
	}
	if _, ok := c.roster[remote]; !ok {
		return
	}
	log.Warn().Str("module", "client").Str("peer", string(remote)).Msg("media connection lost, renegotiating")
	c.sessions.Remove(remote)
	if c.player != nil {
		c.player.Remove(remote)
	}
	fresh, _, err := c.sessions.Ensure(remote)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("recreate session")
		return
	}
	// Either side may notice the failure first, so both may offer here;
	// collision handling settles it.
	if err := fresh.OnLocalNegotiationNeeded(); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("renegotiate")
	}
}

// live returns the session for remote only while media still backs it.
// Callbacks from a torn-down connection find either no session or a newer one.
func (c *Core) live(remote domain.Identity, media negotiation.Media) (*negotiation.Session, bool) {
	s, ok := c.sessions.Get(remote)
	if !ok || s.Media() != media {
		return nil, false
	}
	return s, true
}

// Handle dispatches one inbound envelope.
func (c *Core) Handle(in protocol.Inbound) {
	if !in.AddressedTo(c.local) {
		c.discard(in, "wrong-target")
		return
	}
	if _, isErr := in.Message.(protocol.Error); !isErr && in.Channel != c.channel {
		c.discard(in, "wrong-channel")
		return
	}
	if _, isText := in.Message.(protocol.TextMessage); !isText && in.Sender == c.local {
		c.discard(in, "own")
		return
	}

	switch m := in.Message.(type) {
	case protocol.RosterSnapshot:
		c.onRoster(m.Members)
	case protocol.Join:
		c.onJoin(in.Sender)
	case protocol.Leave:
		c.onLeave(in.Sender)
	case protocol.Offer:
		c.onOffer(in.Sender, m)
	case protocol.Answer:
		c.onAnswer(in.Sender, m)
	case protocol.ConnectivityHint:
		c.onHint(in.Sender, m)
	case protocol.TextMessage:
		if c.onText != nil {
			c.onText(in.Sender, m.Content, time.UnixMilli(m.SentAt))
		}
	case protocol.AudioFrame:
		c.onAudio(in.Sender, m)
	case protocol.Error:
		log.Warn().Str("module", "client").Str("code", m.Code).Str("message", m.Message).Msg("relay error")
	}
	c.metrics.Sessions(c.sessions.Len())
}

func (c *Core) discard(in protocol.Inbound, reason string) {
	log.Debug().
		Str("module", "client").
		Str("kind", string(in.Message.Kind())).
		Str("sender", string(in.Sender)).
		Str("reason", reason).
		Msg("envelope discarded")
	c.metrics.Discarded(reason)
}

func (c *Core) onRoster(members []domain.Identity) {
	clear(c.roster)
	for _, id := range members {
		if id != c.local {
			c.roster[id] = struct{}{}
		}
	}
	if c.relay {
		return
	}
	created, removed, err := c.sessions.Reconcile(members)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("reconcile sessions")
	}
	for _, id := range removed {
		if c.player != nil {
			c.player.Remove(id)
		}
	}
	for _, id := range created {
		c.initiate(id)
	}
}

func (c *Core) onJoin(id domain.Identity) {
	c.roster[id] = struct{}{}
	log.Info().Str("module", "client").Str("peer", string(id)).Msg("member joined")
	if !c.relay {
		c.connect(id)
	}
}

func (c *Core) onLeave(id domain.Identity) {
	delete(c.roster, id)
	c.sessions.Remove(id)
	if c.player != nil {
		c.player.Remove(id)
	}
	log.Info().Str("module", "client").Str("peer", string(id)).Msg("member left")
}

// connect ensures a session with id and lets the impolite side open the
// first offer, so a new pairing exchanges exactly one offer and one answer.
func (c *Core) connect(id domain.Identity) {
	_, created, err := c.sessions.Ensure(id)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", string(id)).Msg("create session")
		return
	}
	if created {
		c.initiate(id)
	}
}

func (c *Core) initiate(id domain.Identity) {
	if negotiation.RoleFor(c.local, id) != negotiation.Impolite {
		return
	}
	s, ok := c.sessions.Get(id)
	if !ok {
		return
	}
	if err := s.OnLocalNegotiationNeeded(); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", string(id)).Msg("start negotiation")
	}
}

func (c *Core) onOffer(from domain.Identity, m protocol.Offer) {
	if c.relay {
		return
	}
	s, _, err := c.sessions.Ensure(from)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", string(from)).Msg("create session for offer")
		return
	}
	c.roster[from] = struct{}{}
	out, err := s.OnOfferReceived(m.Description)
	c.record(protocol.KindOffer, out, err, from)
}

func (c *Core) onAnswer(from domain.Identity, m protocol.Answer) {
	s, ok := c.sessions.Get(from)
	if !ok {
		c.metrics.Negotiation(string(protocol.KindAnswer), "no-session")
		return
	}
	out, err := s.OnAnswerReceived(m.Description)
	c.record(protocol.KindAnswer, out, err, from)
}

// onHint never creates a session: a hint arriving after leave is dropped.
func (c *Core) onHint(from domain.Identity, m protocol.ConnectivityHint) {
	s, ok := c.sessions.Get(from)
	if !ok {
		c.metrics.Negotiation(string(protocol.KindHint), "no-session")
		return
	}
	c.record(protocol.KindHint, s.OnConnectivityHintReceived(m.Candidate), nil, from)
}

func (c *Core) record(kind protocol.Kind, out negotiation.Outcome, err error, from domain.Identity) {
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", string(from)).Str("kind", string(kind)).Msg("negotiation")
		c.metrics.Negotiation(string(kind), "error")
		return
	}
	c.metrics.Negotiation(string(kind), out.String())
}

func (c *Core) onAudio(from domain.Identity, m protocol.AudioFrame) {
	if c.player == nil {
		return
	}
	c.schedule(from, func() (time.Duration, error) {
		return c.player.Deliver(from, m.Samples, m.SampleRate)
	})
}

func (c *Core) schedule(from domain.Identity, push func() (time.Duration, error)) {
	arrived := c.player.Now()
	start, err := push()
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer", string(from)).Msg("schedule frame")
		return
	}
	c.metrics.FrameScheduled(start - arrived)
}

func (c *Core) String() string {
	return fmt.Sprintf("%s@%s", c.local, c.channel)
}
