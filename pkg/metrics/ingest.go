package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest outcomes.
const (
	IngestHandled   = "handled"
	IngestDuplicate = "duplicate"
	IngestDropped   = "dropped"
	IngestRetry     = "retry"
)

// IngestMetrics counts inbound bus messages per route and outcome.
type IngestMetrics struct {
	messages *prometheus.CounterVec
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	if reg == nil {
		return &IngestMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Inbound bus messages by route and outcome.",
	}, []string{"route", "outcome"})
	reg.MustRegister(messages)
	return &IngestMetrics{messages: messages}
}

func (m *IngestMetrics) Inc(route, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(route), normalizeLabel(outcome)).Inc()
}
