package signal

import (
	"errors"

	"github.com/dkeye/voicelink/internal/app/orch"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleSignal routes one inbound envelope. Sender and channel on the wire
// are ignored: the connection's identity and current channel are used.
func (ctl *SignalWSController) handleSignal(sess core.MemberSession, c *WsSignalConn, data []byte) {
	if !c.limiter.Allow() {
		ctl.Metrics.Dropped("inbound", "rate_limited")
		ctl.sendError(sess, CodeRateLimited, "too many messages")
		return
	}
	in, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(sess.Meta().Identity)).Msg("bad envelope")
		ctl.sendError(sess, CodeBadEnvelope, err.Error())
		return
	}

	switch m := in.Message.(type) {
	case protocol.Join:
		ctl.handleJoin(sess, in.Channel)
	case protocol.Leave:
		ctl.handleLeave(sess)
	case protocol.TextMessage:
		ctl.reply(sess, ctl.Orch.Text(sess, m))
	case protocol.Offer, protocol.Answer, protocol.ConnectivityHint:
		ctl.reply(sess, ctl.Orch.Forward(sess, in.Target, m))
	case protocol.AudioFrame:
		ctl.reply(sess, ctl.Orch.Audio(sess, m))
	default:
		ctl.sendError(sess, CodeUnsupported, string(m.Kind()))
	}
}

func (ctl *SignalWSController) handleJoin(sess core.MemberSession, raw domain.ChannelName) {
	id := sess.Meta().Identity
	if raw == "" {
		raw = ctl.defaultChannel
	}
	name, err := domain.NewChannelName(string(raw))
	if err != nil {
		ctl.sendError(sess, CodeInvalidChannel, err.Error())
		return
	}
	if !ctl.Joins.Allow(id) {
		log.Warn().Str("module", "signal").Str("peer", string(id)).Msg("join rate limited")
		ctl.sendError(sess, CodeRateLimited, "too many joins")
		return
	}
	log.Info().Str("module", "signal").Str("peer", string(id)).Str("channel", string(name)).Msg("join")
	ctl.Orch.Join(sess, name)
}

// handleLeave exits the current channel; the connection stays open.
func (ctl *SignalWSController) handleLeave(sess core.MemberSession) {
	log.Info().Str("module", "signal").Str("peer", string(sess.Meta().Identity)).Msg("leave")
	ctl.Orch.Leave(sess)
}

// reply turns an orchestrator error into an error envelope. A vanished
// target is not reported: it happens whenever a peer leaves mid-negotiation.
func (ctl *SignalWSController) reply(sess core.MemberSession, err error) {
	switch {
	case err == nil, errors.Is(err, orch.ErrNoTarget):
	case errors.Is(err, orch.ErrNotJoined):
		ctl.sendError(sess, CodeNotJoined, err.Error())
	default:
		ctl.sendError(sess, CodeRejected, err.Error())
	}
}
