package orch

import (
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join moves sess into name: the previous channel is left first, the
// joiner gets a roster snapshot and everyone else a join.
func (o *Orchestrator) Join(sess core.MemberSession, name domain.ChannelName) {
	id := sess.Meta().Identity
	if cur, ok := o.Registry.GetSession(id); !ok || cur != sess {
		return
	}
	if from, ok := o.Registry.ChannelOf(sess); ok {
		o.removeFromChannel(sess, from)
		log.Info().Str("module", "orch").Str("peer", string(id)).Str("from_channel", string(from)).Msg("left previous channel")
	}

	ch := o.Channels.GetOrCreate(name)
	ch.AddMember(sess)
	if !o.Registry.SetChannel(sess, name) {
		// sess was replaced while joining.
		ch.RemoveMember(sess)
		return
	}
	o.Metrics.ChannelSize(string(name), ch.MemberCount())
	o.presenceAdd(name, id)
	log.Info().Str("module", "orch").Str("peer", string(id)).Str("channel", string(name)).Msg("added to channel")

	o.Reply(sess, name, protocol.RosterSnapshot{Members: ch.Members()})
	if data, ok := o.frame(protocol.Header{Sender: id, Channel: name}, protocol.Join{}); ok {
		o.publish(ch, id, protocol.KindJoin, data)
	}
}

// Leave removes sess from its channel, if any, and tells the rest.
func (o *Orchestrator) Leave(sess core.MemberSession) bool {
	name, ok := o.Registry.ChannelOf(sess)
	if !ok {
		return false
	}
	o.removeFromChannel(sess, name)
	o.Registry.SetChannel(sess, "")
	return true
}

func (o *Orchestrator) removeFromChannel(sess core.MemberSession, name domain.ChannelName) {
	id := sess.Meta().Identity
	ch, ok := o.Channels.Get(name)
	if !ok || !ch.RemoveMember(sess) {
		return
	}
	o.presenceRemove(name, id)
	o.Metrics.ChannelSize(string(name), ch.MemberCount())
	if data, ok := o.frame(protocol.Header{Sender: id, Channel: name}, protocol.Leave{}); ok {
		o.publish(ch, id, protocol.KindLeave, data)
	}
	if o.Channels.StopIfEmpty(name) {
		log.Info().Str("module", "orch").Str("channel", string(name)).Msg("channel closed")
	}
}

func (o *Orchestrator) ChannelMembers(name domain.ChannelName) ([]domain.Identity, bool) {
	ch, ok := o.Channels.Get(name)
	if !ok {
		return nil, false
	}
	return ch.Members(), true
}
