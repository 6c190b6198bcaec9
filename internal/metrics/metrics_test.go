package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Relayed("offer", 1)
	m.Relayed("audio-frame", 3)
	m.Dropped("audio-frame", "backpressure")
	m.ChannelSize("general", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.envelopesRelayed.WithLabelValues("audio-frame")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.envelopesDropped.WithLabelValues("audio-frame", "backpressure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.channelMembers.WithLabelValues("general")))

	m.ChannelSize("general", 0)
	assert.Equal(t, 0, testutil.CollectAndCount(m.channelMembers))
}

func TestClientMetrics(t *testing.T) {
	m := NewClientMetrics(prometheus.NewRegistry())
	m.Sessions(2)
	m.Negotiation("offer", "discarded")
	m.Reconnect()
	m.FrameScheduled(20 * time.Millisecond)
	m.Discarded("wrong-channel")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.negotiation.WithLabelValues("offer", "discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesScheduled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.envelopesDiscarded.WithLabelValues("wrong-channel")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var s *ServerMetrics
	var c *ClientMetrics
	assert.NotPanics(t, func() {
		s.ConnectionOpened()
		s.Relayed("join", 1)
		s.ChannelSize("x", 1)
		c.Sessions(1)
		c.FrameScheduled(time.Second)
	})
}
