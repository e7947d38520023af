package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the listener's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ConnectionsActive      prometheus.Gauge
	MessagesTotal          *prometheus.CounterVec
	AcksTotal              *prometheus.CounterVec
	MessageDuration        prometheus.Histogram
	FrameErrors            prometheus.Counter
	UnresolvedReferences   prometheus.Counter
	NotificationsRequested *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "ris_mllp_connections_active",
			Help: "Number of open MLLP connections",
		}),
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ris_messages_total",
			Help: "Inbound HL7 messages by routed message type",
		}, []string{"type"}),
		AcksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ris_acks_total",
			Help: "Acknowledgements written by code",
		}, []string{"code"}),
		MessageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ris_message_duration_seconds",
			Help:    "Time from complete frame to acknowledgement",
			Buckets: prometheus.DefBuckets,
		}),
		FrameErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "ris_frame_errors_total",
			Help: "Malformed MLLP frames",
		}),
		UnresolvedReferences: f.NewCounter(prometheus.CounterOpts{
			Name: "ris_unresolved_references_total",
			Help: "Reports received for unknown accession numbers",
		}),
		NotificationsRequested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ris_notifications_requested_total",
			Help: "Patient notification requests by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ConnectionsActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ConnectionsActive.Dec()
	}
}

func (m *Metrics) MessageRouted(messageType string) {
	if m != nil {
		m.MessagesTotal.WithLabelValues(messageType).Inc()
	}
}

func (m *Metrics) ObserveAck(code string, d time.Duration) {
	if m != nil {
		m.AcksTotal.WithLabelValues(code).Inc()
		m.MessageDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) FrameError() {
	if m != nil {
		m.FrameErrors.Inc()
	}
}

func (m *Metrics) UnresolvedReference() {
	if m != nil {
		m.UnresolvedReferences.Inc()
	}
}

func (m *Metrics) NotificationRequested(kind string) {
	if m != nil {
		m.NotificationsRequested.WithLabelValues(kind).Inc()
	}
}
