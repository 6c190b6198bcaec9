// Package presence mirrors channel membership outside the relay process so
// other instances and tooling can see who is connected.
package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/voicelink/internal/domain"
)

type Store interface {
	Add(ctx context.Context, channel domain.ChannelName, id domain.Identity) error
	Remove(ctx context.Context, channel domain.ChannelName, id domain.Identity) error
	// Members is sorted by identity.
	Members(ctx context.Context, channel domain.ChannelName) ([]domain.Identity, error)
}

// Memory is the single-instance Store.
type Memory struct {
	mu       sync.RWMutex
	channels map[domain.ChannelName]map[domain.Identity]struct{}
}

func NewMemory() *Memory {
	return &Memory{channels: make(map[domain.ChannelName]map[domain.Identity]struct{})}
}

func (m *Memory) Add(_ context.Context, channel domain.ChannelName, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.channels[channel]
	if !ok {
		set = make(map[domain.Identity]struct{})
		m.channels[channel] = set
	}
	set[id] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, channel domain.ChannelName, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.channels[channel]
	if !ok {
		return nil
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.channels, channel)
	}
	return nil
}

func (m *Memory) Members(_ context.Context, channel domain.ChannelName) ([]domain.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.channels[channel]
	out := make([]domain.Identity, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortIdentities(out)
	return out, nil
}

func sortIdentities(ids []domain.Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
