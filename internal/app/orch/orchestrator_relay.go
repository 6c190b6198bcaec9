package orch

import (
	"errors"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Text stamps the message and delivers it to the whole channel, sender
// included.
func (o *Orchestrator) Text(sess core.MemberSession, m protocol.TextMessage) error {
	ch, err := o.current(sess)
	if err != nil {
		return err
	}
	if err := domain.ValidateText(m.Content); err != nil {
		return err
	}
	m.SentAt = o.now().UnixMilli()
	data, ok := o.frame(protocol.Header{Sender: sess.Meta().Identity, Channel: ch.Name()}, m)
	if !ok {
		return nil
	}
	o.publish(ch, "", protocol.KindText, data)
	return nil
}

// Forward delivers an offer, answer or connectivity hint to target only,
// and only when target shares the sender's channel.
func (o *Orchestrator) Forward(sess core.MemberSession, target domain.Identity, m protocol.Message) error {
	ch, err := o.current(sess)
	if err != nil {
		return err
	}
	id := sess.Meta().Identity
	if target == id {
		return ErrSelfTarget
	}
	data, ok := o.frame(protocol.Header{Sender: id, Channel: ch.Name(), Target: target}, m)
	if !ok {
		return nil
	}
	dst, err := ch.SendTo(target, data)
	switch {
	case errors.Is(err, core.ErrNotMember):
		o.Metrics.Dropped(string(m.Kind()), "no_target")
		log.Debug().Str("module", "orch").Str("peer", string(id)).Str("target", string(target)).Str("kind", string(m.Kind())).Msg("target not in channel")
		return ErrNoTarget
	case err != nil:
		o.onBackpressure(ch, dst, m.Kind())
		return nil
	}
	o.Metrics.Relayed(string(m.Kind()), 1)
	return nil
}

// Audio fans a raw frame out to everyone but the sender.
func (o *Orchestrator) Audio(sess core.MemberSession, m protocol.AudioFrame) error {
	ch, err := o.current(sess)
	if err != nil {
		return err
	}
	id := sess.Meta().Identity
	data, ok := o.frame(protocol.Header{Sender: id, Channel: ch.Name()}, m)
	if !ok {
		return nil
	}
	o.publish(ch, id, protocol.KindAudio, data)
	return nil
}
