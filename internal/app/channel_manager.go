package app

import (
	"sort"
	"sync"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
)

type ChannelManagerImpl struct {
	mu       sync.RWMutex
	channels map[domain.ChannelName]core.ChannelService
}

func NewChannelManager() core.ChannelManager {
	return &ChannelManagerImpl{channels: make(map[domain.ChannelName]core.ChannelService)}
}

func (f *ChannelManagerImpl) GetOrCreate(name domain.ChannelName) core.ChannelService {
	f.mu.RLock()
	ch, ok := f.channels[name]
	f.mu.RUnlock()
	if ok {
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok = f.channels[name]; ok {
		return ch
	}
	ch = core.NewChannelService(name)
	f.channels[name] = ch
	return ch
}

func (f *ChannelManagerImpl) Get(name domain.ChannelName) (core.ChannelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ch, ok := f.channels[name]
	return ch, ok
}

func (f *ChannelManagerImpl) List() []core.ChannelInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ChannelInfo, 0, len(f.channels))
	for name, ch := range f.channels {
		out = append(out, core.ChannelInfo{Name: name, MemberCount: ch.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *ChannelManagerImpl) StopIfEmpty(name domain.ChannelName) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[name]
	if !ok || ch.MemberCount() > 0 {
		return false
	}
	delete(f.channels, name)
	return true
}
