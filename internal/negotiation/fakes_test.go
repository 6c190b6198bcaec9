package negotiation

import (
	"sync"
	"testing"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/negotiation/negotiationtest"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type senderFunc func(domain.Identity, protocol.Message) error

func (f senderFunc) Send(to domain.Identity, m protocol.Message) error { return f(to, m) }

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(to domain.Identity, msg protocol.Message) error {
	args := m.Called(to, msg)
	return args.Error(0)
}

type delivery struct {
	from, to domain.Identity
	msg      protocol.Message
}

// wire carries envelopes between sessions of several participants; it keeps
// a log of everything sent.
type wire struct {
	mu      sync.Mutex
	pending []delivery
	sent    []delivery
}

func (w *wire) sender(from domain.Identity) Sender {
	return senderFunc(func(to domain.Identity, m protocol.Message) error {
		w.mu.Lock()
		defer w.mu.Unlock()
		d := delivery{from: from, to: to, msg: m}
		w.pending = append(w.pending, d)
		w.sent = append(w.sent, d)
		return nil
	})
}

func (w *wire) count(k protocol.Kind) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, d := range w.sent {
		if d.msg.Kind() == k {
			n++
		}
	}
	return n
}

func (w *wire) pop() (delivery, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return delivery{}, false
	}
	d := w.pending[0]
	w.pending = w.pending[1:]
	return d, true
}

// peer is one participant's view: its sessions keyed by remote identity.
type peer struct {
	id       domain.Identity
	sessions map[domain.Identity]*Session
	media    map[domain.Identity]*negotiationtest.Media
}

func newPeer(w *wire, id domain.Identity, remotes ...domain.Identity) *peer {
	p := &peer{id: id, sessions: map[domain.Identity]*Session{}, media: map[domain.Identity]*negotiationtest.Media{}}
	for _, r := range remotes {
		m := negotiationtest.NewMedia(string(id))
		p.media[r] = m
		p.sessions[r] = NewSession(id, r, m, w.sender(id))
	}
	return p
}

// dispatch feeds one delivery into the receiving session and returns the outcome.
func dispatch(t *testing.T, peers map[domain.Identity]*peer, d delivery) Outcome {
	t.Helper()
	s, ok := peers[d.to].sessions[d.from]
	require.True(t, ok, "no session %s->%s", d.to, d.from)
	switch m := d.msg.(type) {
	case protocol.Offer:
		out, err := s.OnOfferReceived(m.Description)
		require.NoError(t, err)
		return out
	case protocol.Answer:
		out, err := s.OnAnswerReceived(m.Description)
		require.NoError(t, err)
		return out
	case protocol.ConnectivityHint:
		return s.OnConnectivityHintReceived(m.Candidate)
	}
	t.Fatalf("unexpected message %T", d.msg)
	return OutcomeIgnored
}

func drain(t *testing.T, w *wire, peers map[domain.Identity]*peer) []Outcome {
	t.Helper()
	var outs []Outcome
	for {
		d, ok := w.pop()
		if !ok {
			return outs
		}
		outs = append(outs, dispatch(t, peers, d))
	}
}
