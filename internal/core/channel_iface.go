package core

import (
	"github.com/dkeye/voicelink/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// ChannelService is the core-facing API of a channel.
// It owns the membership set but never touches transport resources.
type ChannelService interface {
	Name() domain.ChannelName
	MemberCount() int
	// Members is sorted by identity.
	Members() []domain.Identity
	Member(id domain.Identity) (MemberSession, bool)

	AddMember(ms MemberSession)
	// RemoveMember only removes ms itself, not a newer session of the
	// same identity.
	RemoveMember(ms MemberSession) bool
	// Broadcast sends data to every member except `except`; pass "" to
	// include everyone.
	Broadcast(except domain.Identity, data Frame) PublishResult
	SendTo(id domain.Identity, data Frame) (MemberSession, error)
}

type ChannelInfo struct {
	Name        domain.ChannelName `json:"name"`
	MemberCount int                `json:"member_count"`
}

type ChannelManager interface {
	GetOrCreate(name domain.ChannelName) ChannelService
	Get(name domain.ChannelName) (ChannelService, bool)
	List() []ChannelInfo
	// StopIfEmpty drops the channel once nobody is left in it.
	StopIfEmpty(name domain.ChannelName) bool
}
