package app

import (
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/protocol"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	}
	return "none"
}

type Policy interface {
	OnBackPressure(ch core.ChannelService, member core.MemberSession, kind protocol.Kind) BackpressureAction
}

// SimplePolicy drops audio for a slow member and kicks it on anything else.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.ChannelService, _ core.MemberSession, kind protocol.Kind) BackpressureAction {
	if kind == protocol.KindAudio {
		return DropFrame
	}
	return KickMember
}
