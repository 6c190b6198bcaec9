package negotiation

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrSelfSession = errors.New("session with local identity")

// Factory builds a session, including its media connection, for remote.
type Factory func(remote domain.Identity) (*Session, error)

// Registry holds at most one live session per remote identity for the
// current channel.
type Registry struct {
	mu       sync.Mutex
	local    domain.Identity
	channel  domain.ChannelName
	sessions map[domain.Identity]*Session
	factory  Factory
}

func NewRegistry(local domain.Identity, factory Factory) *Registry {
	return &Registry{
		local:    local,
		sessions: make(map[domain.Identity]*Session),
		factory:  factory,
	}
}

// Ensure returns the live session for remote, creating it when absent.
// created is false when a live session already existed.
func (r *Registry) Ensure(remote domain.Identity) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(remote)
}

func (r *Registry) ensureLocked(remote domain.Identity) (*Session, bool, error) {
	if remote == r.local {
		return nil, false, ErrSelfSession
	}
	if s, ok := r.sessions[remote]; ok && s.State() != Closed {
		return s, false, nil
	}
	s, err := r.factory(remote)
	if err != nil {
		return nil, false, fmt.Errorf("create session for %s: %w", remote, err)
	}
	r.sessions[remote] = s
	log.Info().Str("module", "negotiation.registry").Str("peer", string(remote)).Str("role", s.Role().String()).Msg("session created")
	return s, true, nil
}

// Get returns the live session for remote.
func (r *Registry) Get(remote domain.Identity) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[remote]
	if !ok || s.State() == Closed {
		return nil, false
	}
	return s, true
}

// Remove closes and forgets the session for remote.
func (r *Registry) Remove(remote domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(remote)
}

func (r *Registry) removeLocked(remote domain.Identity) bool {
	s, ok := r.sessions[remote]
	if !ok {
		return false
	}
	delete(r.sessions, remote)
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Str("module", "negotiation.registry").Str("peer", string(remote)).Msg("close session")
	}
	log.Info().Str("module", "negotiation.registry").Str("peer", string(remote)).Msg("session removed")
	return true
}

// Reconcile makes the registry match members: sessions are created for new
// identities and removed for absent ones. The local identity is skipped.
func (r *Registry) Reconcile(members []domain.Identity) (created, removed []domain.Identity, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[domain.Identity]struct{}, len(members))
	for _, m := range members {
		if m != r.local {
			present[m] = struct{}{}
		}
	}

	for _, id := range r.identitiesLocked() {
		if _, ok := present[id]; !ok {
			r.removeLocked(id)
			removed = append(removed, id)
		}
	}

	var errs []error
	for _, id := range sortedKeys(present) {
		_, isNew, e := r.ensureLocked(id)
		if e != nil {
			errs = append(errs, e)
			continue
		}
		if isNew {
			created = append(created, id)
		}
	}
	return created, removed, errors.Join(errs...)
}

// Reset closes every session and switches the registry to channel.
func (r *Registry) Reset(channel domain.ChannelName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("module", "negotiation.registry").Str("peer", string(id)).Msg("close session")
		}
	}
	n := len(r.sessions)
	r.sessions = make(map[domain.Identity]*Session)
	r.channel = channel
	log.Info().Str("module", "negotiation.registry").Str("channel", string(channel)).Int("closed", n).Msg("registry reset")
}

func (r *Registry) Channel() domain.ChannelName {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}

func (r *Registry) Local() domain.Identity { return r.local }

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Identities returns the remote identities with a session, sorted.
func (r *Registry) Identities() []domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identitiesLocked()
}

func (r *Registry) identitiesLocked() []domain.Identity {
	out := make([]domain.Identity, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func sortedKeys(m map[domain.Identity]struct{}) []domain.Identity {
	out := make([]domain.Identity, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
