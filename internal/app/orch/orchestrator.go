// Package orch ties connections, channels and presence together. It is the
// relay's signaling bus: every inbound envelope ends up in one of its
// methods.
package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/voicelink/internal/app"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/metrics"
	"github.com/dkeye/voicelink/internal/presence"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotJoined  = errors.New("not in a channel")
	ErrNoTarget   = errors.New("target not in channel")
	ErrSelfTarget = errors.New("envelope targets its sender")
)

type Orchestrator struct {
	Registry *app.Registry
	Channels core.ChannelManager
	Policy   app.Policy
	// Presence is optional.
	Presence presence.Store
	Metrics  *metrics.ServerMetrics
	// Now stamps text messages; time.Now when nil.
	Now func() time.Time
}

// Connect binds a fresh connection. An older connection with the same
// identity is removed from its channel and closed.
func (o *Orchestrator) Connect(sess core.MemberSession, cancel context.CancelFunc) {
	old, oldChannel, oldCancel := o.Registry.Bind(sess, cancel)
	if old == nil {
		return
	}
	if oldChannel != "" {
		o.removeFromChannel(old, oldChannel)
	}
	if oldCancel != nil {
		oldCancel()
	}
	old.Signal().Close()
}

// Disconnect runs when a connection's pumps stop.
func (o *Orchestrator) Disconnect(sess core.MemberSession) {
	o.Leave(sess)
	o.Registry.Unbind(sess)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) frame(h protocol.Header, m protocol.Message) (core.Frame, bool) {
	data, err := protocol.Encode(h, m)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("kind", string(m.Kind())).Msg("encode envelope")
		return nil, false
	}
	return data, true
}

// Reply sends m to sess alone, outside of any channel fan-out.
func (o *Orchestrator) Reply(sess core.MemberSession, channel domain.ChannelName, m protocol.Message) {
	data, ok := o.frame(protocol.Header{Channel: channel, Target: sess.Meta().Identity}, m)
	if !ok {
		return
	}
	if err := sess.Signal().TrySend(data); err != nil {
		o.Metrics.Dropped(string(m.Kind()), "backpressure")
		return
	}
	o.Metrics.Relayed(string(m.Kind()), 1)
}

// publish fans data out and applies the backpressure policy to members
// that could not take it.
func (o *Orchestrator) publish(ch core.ChannelService, except domain.Identity, kind protocol.Kind, data core.Frame) {
	res := ch.Broadcast(except, data)
	o.Metrics.Relayed(string(kind), res.SendTo)
	for _, slow := range res.Dropped {
		o.onBackpressure(ch, slow, kind)
	}
}

func (o *Orchestrator) onBackpressure(ch core.ChannelService, slow core.MemberSession, kind protocol.Kind) {
	action := app.KickMember
	if o.Policy != nil {
		action = o.Policy.OnBackPressure(ch, slow, kind)
	}
	o.Metrics.Dropped(string(kind), "backpressure")
	log.Warn().Str("module", "orch").Str("peer", string(slow.Meta().Identity)).Str("kind", string(kind)).Str("action", action.String()).Msg("slow member")
	switch action {
	case app.KickMember:
		o.Kick(slow)
	case app.DropFrame, app.NoAction:
	}
}

// Kick removes a member from its channel and closes its connection; the
// pumps then run Disconnect.
func (o *Orchestrator) Kick(sess core.MemberSession) {
	o.Leave(sess)
	sess.Signal().Close()
}

func (o *Orchestrator) presenceAdd(channel domain.ChannelName, id domain.Identity) {
	if o.Presence == nil {
		return
	}
	if err := o.Presence.Add(context.Background(), channel, id); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("peer", string(id)).Msg("presence add")
	}
}

func (o *Orchestrator) presenceRemove(channel domain.ChannelName, id domain.Identity) {
	if o.Presence == nil {
		return
	}
	if err := o.Presence.Remove(context.Background(), channel, id); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("peer", string(id)).Msg("presence remove")
	}
}

func (o *Orchestrator) current(sess core.MemberSession) (core.ChannelService, error) {
	name, ok := o.Registry.ChannelOf(sess)
	if !ok {
		return nil, ErrNotJoined
	}
	ch, ok := o.Channels.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: channel %s gone", ErrNotJoined, name)
	}
	return ch, nil
}
