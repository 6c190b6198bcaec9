package negotiation

import (
	"fmt"
	"sync"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Media is the connection-level collaborator of a Session. Descriptions and
// hints pass through it untouched by the session.
type Media interface {
	// CreateOffer synthesizes a local offer and installs it as the local description.
	CreateOffer() (protocol.Blob, error)
	// SetRemoteDescription installs an offer or answer. Installing an offer
	// while a local offer is pending rolls the local offer back first.
	SetRemoteDescription(protocol.Blob) error
	// CreateAnswer synthesizes and installs a local answer.
	CreateAnswer() (protocol.Blob, error)
	AddCandidate(protocol.Blob) error
	Close() error
}

// Sender delivers a point-to-point envelope to target.
type Sender interface {
	Send(target domain.Identity, m protocol.Message) error
}

// Session is the negotiation state for one remote participant.
type Session struct {
	mu sync.Mutex

	local  domain.Identity
	remote domain.Identity
	role   Role

	state         State
	beforeOffer   State
	offerInFlight bool
	hasLocal      bool
	hasRemote     bool
	hints         CandidateQueue

	media  Media
	sender Sender
}

func NewSession(local, remote domain.Identity, media Media, sender Sender) *Session {
	return &Session{
		local:  local,
		remote: remote,
		role:   RoleFor(local, remote),
		media:  media,
		sender: sender,
	}
}

// OnLocalNegotiationNeeded starts an offer toward the peer. It is a no-op
// while an offer is already in flight.
func (s *Session) OnLocalNegotiationNeeded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed || s.offerInFlight || s.state == LocalOfferPending {
		return nil
	}

	s.beforeOffer = s.state
	s.offerInFlight = true
	s.state = LocalOfferPending

	desc, err := s.media.CreateOffer()
	if err != nil {
		s.abandonOffer()
		return fmt.Errorf("create offer for %s: %w", s.remote, err)
	}
	s.hasLocal = true

	if err := s.sender.Send(s.remote, protocol.Offer{Description: desc}); err != nil {
		s.abandonOffer()
		return fmt.Errorf("send offer to %s: %w", s.remote, err)
	}
	s.logState("offer sent")
	return nil
}

// OnOfferReceived handles a remote offer. On collision the impolite side
// discards it; the polite side rolls back its own offer and answers.
func (s *Session) OnOfferReceived(desc protocol.Blob) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return OutcomeIgnored, nil
	}

	collision := s.offerInFlight || s.state.Negotiating()
	if collision && s.role == Impolite {
		log.Info().
			Str("module", "negotiation").
			Str("peer", string(s.remote)).
			Str("state", s.state.String()).
			Msg("offer collision, keeping local offer")
		return OutcomeDiscarded, nil
	}
	if collision {
		log.Info().
			Str("module", "negotiation").
			Str("peer", string(s.remote)).
			Str("state", s.state.String()).
			Msg("offer collision, rolling back local offer")
	}

	// A failed apply returns to the state this offer interrupted. A polite
	// side that was mid-offer has given that offer up.
	prev := s.state
	if collision {
		prev = s.beforeOffer
	}
	s.state = RemoteOfferPending
	if err := s.media.SetRemoteDescription(desc); err != nil {
		s.state, s.offerInFlight = prev, false
		return OutcomeIgnored, fmt.Errorf("apply offer from %s: %w", s.remote, err)
	}
	s.hasRemote = true
	s.drainHints()

	answer, err := s.media.CreateAnswer()
	if err != nil {
		s.state, s.offerInFlight = prev, false
		return OutcomeIgnored, fmt.Errorf("create answer for %s: %w", s.remote, err)
	}
	s.hasLocal = true
	s.offerInFlight = false
	s.state = Stable

	if err := s.sender.Send(s.remote, protocol.Answer{Description: answer}); err != nil {
		return OutcomeAccepted, fmt.Errorf("send answer to %s: %w", s.remote, err)
	}
	s.logState("answer sent")
	return OutcomeAccepted, nil
}

// OnAnswerReceived installs the answer to our pending offer. Stale and
// duplicate answers are ignored.
func (s *Session) OnAnswerReceived(desc protocol.Blob) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != LocalOfferPending {
		log.Debug().
			Str("module", "negotiation").
			Str("peer", string(s.remote)).
			Str("state", s.state.String()).
			Msg("ignoring answer")
		return OutcomeIgnored, nil
	}

	if err := s.media.SetRemoteDescription(desc); err != nil {
		s.abandonOffer()
		return OutcomeIgnored, fmt.Errorf("apply answer from %s: %w", s.remote, err)
	}
	s.hasRemote = true
	s.drainHints()
	s.offerInFlight = false
	s.state = Stable
	s.logState("answer applied")
	return OutcomeAccepted, nil
}

// abandonOffer drops the pending local offer and returns to the state it
// started from.
func (s *Session) abandonOffer() {
	s.state, s.offerInFlight = s.beforeOffer, false
}

// OnConnectivityHintReceived applies hint once a remote description exists
// and queues it otherwise.
func (s *Session) OnConnectivityHintReceived(hint protocol.Blob) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return OutcomeIgnored
	}
	if !s.hasRemote {
		seq := s.hints.Enqueue(hint)
		log.Debug().Str("module", "negotiation").Str("peer", string(s.remote)).Uint64("seq", seq).Msg("hint queued")
		return OutcomeQueued
	}
	if err := s.media.AddCandidate(hint); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("peer", string(s.remote)).Msg("apply hint")
	}
	return OutcomeApplied
}

// SendLocalHint forwards a locally gathered hint to the peer.
func (s *Session) SendLocalHint(hint protocol.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil
	}
	return s.sender.Send(s.remote, protocol.ConnectivityHint{Candidate: hint})
}

// Close tears down the media connection. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil
	}
	s.state = Closed
	s.offerInFlight = false
	s.hints.Reset()
	s.logState("session closed")
	return s.media.Close()
}

func (s *Session) drainHints() {
	if s.hints.Drained() {
		return
	}
	n, err := s.hints.DrainInto(s.media.AddCandidate)
	if err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("peer", string(s.remote)).Msg("drain hints")
	}
	log.Debug().Str("module", "negotiation").Str("peer", string(s.remote)).Int("applied", n).Msg("hints drained")
}

func (s *Session) logState(msg string) {
	log.Info().
		Str("module", "negotiation").
		Str("peer", string(s.remote)).
		Str("role", s.role.String()).
		Str("state", s.state.String()).
		Msg(msg)
}

func (s *Session) Remote() domain.Identity { return s.remote }
func (s *Session) Role() Role              { return s.role }
func (s *Session) Media() Media            { return s.media }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) OfferInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offerInFlight
}

func (s *Session) HasRemoteDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasRemote
}

func (s *Session) PendingHints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hints.Len()
}

func (s *Session) HasLocalDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLocal
}
