// Package negotiationtest provides an in-memory negotiation.Media for tests.
package negotiationtest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/voicelink/internal/protocol"
)

// Description builds a session description blob.
func Description(typ, sdp string) protocol.Blob {
	b, _ := json.Marshal(map[string]string{"type": typ, "sdp": sdp})
	return b
}

func DescriptionType(b protocol.Blob) string {
	var d struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(b, &d)
	return d.Type
}

// Media models the signaling state of a peer connection: a pending local
// offer is rolled back when a remote offer is installed.
type Media struct {
	mu         sync.Mutex
	name       string
	offers     int
	answers    int
	localOffer bool
	remote     []protocol.Blob
	candidates []protocol.Blob
	rollbacks  int
	closed     bool

	FailOffer     error
	FailRemote    error
	FailCandidate func(protocol.Blob) error
}

func NewMedia(name string) *Media { return &Media{name: name} }

func (m *Media) CreateOffer() (protocol.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOffer != nil {
		return nil, m.FailOffer
	}
	m.offers++
	m.localOffer = true
	return Description("offer", fmt.Sprintf("%s-offer-%d", m.name, m.offers)), nil
}

func (m *Media) SetRemoteDescription(b protocol.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRemote != nil {
		return m.FailRemote
	}
	switch DescriptionType(b) {
	case "offer":
		if m.localOffer {
			m.rollbacks++
			m.localOffer = false
		}
	case "answer":
		m.localOffer = false
	default:
		return fmt.Errorf("bad description %s", b)
	}
	m.remote = append(m.remote, b)
	return nil
}

func (m *Media) CreateAnswer() (protocol.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers++
	return Description("answer", fmt.Sprintf("%s-answer-%d", m.name, m.answers)), nil
}

func (m *Media) AddCandidate(b protocol.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCandidate != nil {
		if err := m.FailCandidate(b); err != nil {
			return err
		}
	}
	m.candidates = append(m.candidates, b)
	return nil
}

func (m *Media) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Media) Offers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers
}

func (m *Media) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

func (m *Media) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Media) RemoteDescriptions() []protocol.Blob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Blob(nil), m.remote...)
}

// Candidates returns the applied hints in order.
func (m *Media) Candidates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.candidates))
	for _, c := range m.candidates {
		out = append(out, string(c))
	}
	return out
}
