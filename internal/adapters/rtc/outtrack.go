package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicelink/internal/audio"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	pcmuRate         = 8000
	pcmuPayloadType  = 0
	samplesPerPacket = 160
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack packetizes captured audio into PCMU RTP for one peer.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32

	mu        sync.Mutex
	seq       uint16
	timestamp uint32
	pending   []float32
}

func NewOutTrack(streamID string) (*OutTrack, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: pcmuRate,
		Channels:  1,
	}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	return &OutTrack{Track: track}, nil
}

func (ot *OutTrack) GetState() TrackState { return TrackState(ot.state.Load()) }
func (ot *OutTrack) MarkOk()              { ot.state.Store(int32(TrackStateOk)) }
func (ot *OutTrack) MarkMuted()           { ot.state.Store(int32(TrackStateMuted)) }
func (ot *OutTrack) MarkDelete()          { ot.state.Store(int32(TrackStateDelete)) }

// WriteSamples resamples a captured frame to 8 kHz and sends it as 20 ms
// packets. A partial packet is held until the next frame.
func (ot *OutTrack) WriteSamples(samples []float32, rate int) error {
	if ot.GetState() != TrackStateOk {
		return nil
	}
	ot.mu.Lock()
	defer ot.mu.Unlock()

	ot.pending = append(ot.pending, audio.Resample(samples, rate, pcmuRate)...)
	for len(ot.pending) >= samplesPerPacket {
		pkt := ot.packet(ot.pending[:samplesPerPacket])
		ot.pending = ot.pending[samplesPerPacket:]
		if err := ot.Track.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (ot *OutTrack) packet(samples []float32) *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pcmuPayloadType,
			SequenceNumber: ot.seq,
			Timestamp:      ot.timestamp,
		},
		Payload: audio.EncodeMuLaw(samples),
	}
	ot.seq++
	ot.timestamp += uint32(len(samples))
	return pkt
}
