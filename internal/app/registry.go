package app

import (
	"context"
	"sync"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Channel domain.ChannelName
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks the live connection of every identity and the channel it
// is in. At most one connection is bound per identity.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.Identity]*sessionEntry)}
}

// Bind registers sess for its identity and returns the connection it
// replaced, if any. The caller tears the old one down.
func (r *Registry) Bind(sess core.MemberSession, cancel context.CancelFunc) (old core.MemberSession, oldChannel domain.ChannelName, oldCancel context.CancelFunc) {
	id := sess.Meta().Identity
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		old, oldChannel, oldCancel = e.Session, e.Channel, e.Cancel
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("replacing existing connection")
	}
	r.sessions[id] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("bound signal")
	return old, oldChannel, oldCancel
}

// Unbind removes sess unless a newer connection took its identity.
func (r *Registry) Unbind(sess core.MemberSession) bool {
	id := sess.Meta().Identity
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("unbind session")
	return true
}

func (r *Registry) GetSession(id domain.Identity) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// ChannelOf returns the channel sess is currently in.
func (r *Registry) ChannelOf(sess core.MemberSession) (domain.ChannelName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sess.Meta().Identity]
	if !ok || e.Session != sess || e.Channel == "" {
		return "", false
	}
	return e.Channel, true
}

func (r *Registry) SetChannel(sess core.MemberSession, channel domain.ChannelName) bool {
	id := sess.Meta().Identity
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.Session != sess {
		return false
	}
	e.Channel = channel
	if channel == "" {
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("removed channel association")
	} else {
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("channel", string(channel)).Msg("updated channel")
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the pumps of the connection bound to id.
func (r *Registry) Cancel(id domain.Identity) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("canceled session")
	return true
}
