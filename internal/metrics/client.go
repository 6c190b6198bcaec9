package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ClientMetrics struct {
	sessionsActive     prometheus.Gauge
	negotiation        *prometheus.CounterVec
	reconnects         prometheus.Counter
	framesScheduled    prometheus.Counter
	playbackLag        prometheus.Histogram
	envelopesDiscarded *prometheus.CounterVec
}

func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	f := promauto.With(reg)
	return &ClientMetrics{
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicelink_client_peer_sessions",
			Help: "Live peer sessions in the current channel",
		}),
		negotiation: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_client_negotiation_events_total",
			Help: "Inbound negotiation envelopes by kind and outcome",
		}, []string{"kind", "outcome"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_client_reconnects_total",
			Help: "Signaling reconnect attempts",
		}),
		framesScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_client_frames_scheduled_total",
			Help: "Audio frames handed to the playback scheduler",
		}),
		playbackLag: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_client_playback_lag_seconds",
			Help:    "Delay between frame arrival and its scheduled start",
			Buckets: []float64{0, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		envelopesDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_client_envelopes_discarded_total",
			Help: "Inbound envelopes discarded before dispatch, by reason",
		}, []string{"reason"}),
	}
}

func (m *ClientMetrics) Sessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *ClientMetrics) Negotiation(kind, outcome string) {
	if m == nil {
		return
	}
	m.negotiation.WithLabelValues(kind, outcome).Inc()
}

func (m *ClientMetrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *ClientMetrics) FrameScheduled(lag time.Duration) {
	if m == nil {
		return
	}
	m.framesScheduled.Inc()
	m.playbackLag.Observe(lag.Seconds())
}

func (m *ClientMetrics) Discarded(reason string) {
	if m == nil {
		return
	}
	m.envelopesDiscarded.WithLabelValues(reason).Inc()
}
