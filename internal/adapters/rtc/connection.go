package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Options configures one peer connection.
type Options struct {
	Peer domain.Identity
	// Send adds a local audio track; without it the transceiver is recvonly.
	Send bool
	// OnCandidate receives locally gathered ICE candidates as opaque hints.
	OnCandidate func(protocol.Blob)
	// OnTrack is called for every remote track.
	OnTrack func(ctx context.Context, track *webrtc.TrackRemote)
	// OnClosed is called once the connection failed or was closed.
	OnClosed func()
}

// WebRTCConnection implements negotiation.Media on top of a pion
// PeerConnection. Descriptions travel as JSON-encoded
// webrtc.SessionDescription, hints as webrtc.ICECandidateInit.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	peer   domain.Identity
	out    *OutTrack
	cancel context.CancelFunc

	onCandidate func(protocol.Blob)
	onTrack     func(ctx context.Context, track *webrtc.TrackRemote)
	onClosed    func()
	closedOnce  sync.Once
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return WebRTCConfig([]string{"stun:stun.l.google.com:19302"})
}

func WebRTCConfig(iceURLs []string) webrtc.Configuration {
	if len(iceURLs) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceURLs}},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, opts Options) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{
		pc:          pc,
		peer:        opts.Peer,
		onCandidate: opts.OnCandidate,
		onTrack:     opts.OnTrack,
		onClosed:    opts.OnClosed,
	}

	if opts.Send {
		out, err := NewOutTrack("voicelink-" + string(opts.Peer))
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		if _, err := pc.AddTransceiverFromTrack(out.Track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add audio track: %w", err)
		}
		c.out = out
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add recvonly transceiver: %w", err)
		}
	}
	return c, nil
}

// Start installs the pion callbacks and binds the connection lifetime to ctx.
func (c *WebRTCConnection) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.onCandidate == nil {
			return
		}
		b, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "webrtc").Msg("marshal candidate")
			return
		}
		c.onCandidate(b)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(c.peer)).
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track)
		}
	})
}

func (c *WebRTCConnection) CreateOffer() (protocol.Blob, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

// SetRemoteDescription rolls back a pending local offer before installing a
// remote one.
func (c *WebRTCConnection) SetRemoteDescription(b protocol.Blob) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(b, &sd); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	if sd.Type == webrtc.SDPTypeOffer && c.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		log.Debug().Str("module", "webrtc").Str("peer", string(c.peer)).Msg("local offer rolled back")
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) CreateAnswer() (protocol.Blob, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (c *WebRTCConnection) AddCandidate(b protocol.Blob) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(b, &ci); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.out != nil {
		c.out.MarkDelete()
	}
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", string(c.peer)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Msg("closed")
	}
	c.fireClosed()
	return err
}

func (c *WebRTCConnection) fireClosed() {
	c.closedOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

// Out returns the local audio track, nil for receive-only connections.
func (c *WebRTCConnection) Out() *OutTrack { return c.out }

func (c *WebRTCConnection) SignalingState() webrtc.SignalingState { return c.pc.SignalingState() }
