package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotMember = errors.New("not a channel member")

// channelImpl is a threadsafe in-memory channel.
// It never closes adapter-owned resources.
type channelImpl struct {
	name    domain.ChannelName
	mu      sync.RWMutex
	members map[domain.Identity]MemberSession
}

func NewChannelService(name domain.ChannelName) ChannelService {
	return &channelImpl{
		name:    name,
		members: make(map[domain.Identity]MemberSession),
	}
}

func (c *channelImpl) Name() domain.ChannelName { return c.name }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

func (c *channelImpl) Members() []domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Identity, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (c *channelImpl) Member(id domain.Identity) (MemberSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms, ok := c.members[id]
	return ms, ok
}

func (c *channelImpl) AddMember(ms MemberSession) {
	id := ms.Meta().Identity
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[id] = ms
	log.Info().Str("module", "core.channel").Str("channel", string(c.name)).Str("peer", string(id)).Msg("member added")
}

func (c *channelImpl) RemoveMember(ms MemberSession) bool {
	id := ms.Meta().Identity
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.members[id]; !ok || cur != ms {
		return false
	}
	delete(c.members, id)
	log.Info().Str("module", "core.channel").Str("channel", string(c.name)).Str("peer", string(id)).Msg("member removed")
	return true
}

func (c *channelImpl) Broadcast(except domain.Identity, data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for id, m := range c.members {
		if id == except {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("except", string(except)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (c *channelImpl) SendTo(id domain.Identity, data Frame) (MemberSession, error) {
	c.mu.RLock()
	m, ok := c.members[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotMember
	}
	return m, m.Signal().TrySend(data)
}
