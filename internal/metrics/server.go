// Package metrics exposes Prometheus collectors for the relay server and the
// client. A nil collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ServerMetrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	envelopesRelayed  *prometheus.CounterVec
	envelopesDropped  *prometheus.CounterVec
	channelMembers    *prometheus.GaugeVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	f := promauto.With(reg)
	return &ServerMetrics{
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicelink_connections_active",
			Help: "Number of open signaling connections",
		}),
		connectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_connections_total",
			Help: "Total number of accepted signaling connections",
		}),
		envelopesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_envelopes_relayed_total",
			Help: "Envelopes delivered to a member, by kind",
		}, []string{"kind"}),
		envelopesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_envelopes_dropped_total",
			Help: "Envelopes not delivered, by kind and reason",
		}, []string{"kind", "reason"}),
		channelMembers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicelink_channel_members",
			Help: "Members currently in each channel",
		}, []string{"channel"}),
	}
}

func (m *ServerMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *ServerMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *ServerMetrics) Relayed(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.envelopesRelayed.WithLabelValues(kind).Add(float64(n))
}

func (m *ServerMetrics) Dropped(kind, reason string) {
	if m == nil {
		return
	}
	m.envelopesDropped.WithLabelValues(kind, reason).Inc()
}

func (m *ServerMetrics) ChannelSize(channel string, n int) {
	if m == nil {
		return
	}
	if n == 0 {
		m.channelMembers.DeleteLabelValues(channel)
		return
	}
	m.channelMembers.WithLabelValues(channel).Set(float64(n))
}
