package rtc

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T, send bool) *WebRTCConnection {
	t.Helper()
	c, err := NewWebRTCConnection(WebRTCConfig(nil), Options{Peer: "peer", Send: send})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func decodeDescription(t *testing.T, b protocol.Blob) webrtc.SessionDescription {
	t.Helper()
	var sd webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(b, &sd))
	return sd
}

func TestReceiveOnlyOffer(t *testing.T) {
	c := newTestConnection(t, false)
	assert.Nil(t, c.Out())

	b, err := c.CreateOffer()
	require.NoError(t, err)
	sd := decodeDescription(t, b)
	assert.Equal(t, webrtc.SDPTypeOffer, sd.Type)
	assert.Contains(t, sd.SDP, "m=audio")
	assert.Contains(t, sd.SDP, "a=recvonly")
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, c.SignalingState())
}

func TestOfferAnswerExchange(t *testing.T) {
	offerer := newTestConnection(t, true)
	answerer := newTestConnection(t, false)

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, answerer.SetRemoteDescription(offer))
	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, decodeDescription(t, answer).Type)

	require.NoError(t, offerer.SetRemoteDescription(answer))
	assert.Equal(t, webrtc.SignalingStateStable, offerer.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, answerer.SignalingState())
}

func TestRemoteOfferRollsBackLocalOffer(t *testing.T) {
	polite := newTestConnection(t, true)
	impolite := newTestConnection(t, true)

	_, err := polite.CreateOffer()
	require.NoError(t, err)
	theirs, err := impolite.CreateOffer()
	require.NoError(t, err)

	require.NoError(t, polite.SetRemoteDescription(theirs))
	assert.Equal(t, webrtc.SignalingStateHaveRemoteOffer, polite.SignalingState())

	answer, err := polite.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, impolite.SetRemoteDescription(answer))
	assert.Equal(t, webrtc.SignalingStateStable, impolite.SignalingState())
}

func TestMalformedBlobs(t *testing.T) {
	c := newTestConnection(t, false)
	assert.Error(t, c.SetRemoteDescription(protocol.Blob(`{`)))
	assert.Error(t, c.AddCandidate(protocol.Blob(`[]`)))
}

func TestOutTrackPacketizes(t *testing.T) {
	ot, err := NewOutTrack("test")
	require.NoError(t, err)

	require.NoError(t, ot.WriteSamples(make([]float32, 1024), 48000))
	assert.Equal(t, uint16(1), ot.seq)
	assert.Equal(t, uint32(samplesPerPacket), ot.timestamp)
	assert.Len(t, ot.pending, 11)

	ot.MarkMuted()
	require.NoError(t, ot.WriteSamples(make([]float32, 4800), 48000))
	assert.Equal(t, uint16(1), ot.seq)

	ot.MarkOk()
	require.NoError(t, ot.WriteSamples(make([]float32, 960), 48000))
	assert.Equal(t, uint16(2), ot.seq)
	assert.Len(t, ot.pending, 11)
	assert.Equal(t, uint32(2*samplesPerPacket), ot.timestamp)
}

func TestDecodePacket(t *testing.T) {
	assert.Nil(t, DecodePacket(nil))
	assert.Nil(t, DecodePacket(&rtp.Packet{}))

	got := DecodePacket(&rtp.Packet{Payload: []byte{0xff, 0xff}})
	assert.Equal(t, []float32{0, 0}, got)
}
