package rtc

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dkeye/voicelink/internal/audio"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Deliver receives decoded samples from a remote track.
type Deliver func(samples []float32, rate int)

// ReadAudio decodes a remote PCMU track until ctx is done or the track ends.
func ReadAudio(ctx context.Context, track *webrtc.TrackRemote, deliver Deliver, logger *zerolog.Logger) {
	codec := track.Codec()
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypePCMU) {
		logger.Warn().Str("codec", codec.MimeType).Msg("unsupported remote codec, ignoring track")
		return
	}
	rate := int(codec.ClockRate)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("remote audio ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error().Err(err).Msg("read RTP error, stopping")
			}
			return
		}
		if samples := DecodePacket(pkt); len(samples) > 0 {
			deliver(samples, rate)
		}
	}
}

// DecodePacket turns a PCMU RTP packet into float samples.
func DecodePacket(pkt *rtp.Packet) []float32 {
	if pkt == nil || len(pkt.Payload) == 0 {
		return nil
	}
	return audio.DecodeMuLaw(pkt.Payload)
}
