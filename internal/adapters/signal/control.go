package signal

import (
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/protocol"
)

// Error codes carried in error envelopes.
const (
	CodeBadEnvelope    = "bad_envelope"
	CodeRateLimited    = "rate_limited"
	CodeInvalidChannel = "invalid_channel"
	CodeNotJoined      = "not_joined"
	CodeUnsupported    = "unsupported"
	CodeRejected       = "rejected"
)

func (ctl *SignalWSController) sendError(sess core.MemberSession, code, msg string) {
	ctl.Orch.Reply(sess, "", protocol.Error{Code: code, Message: msg})
}
