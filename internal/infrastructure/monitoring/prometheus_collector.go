package monitoring

import (
	"time"

	"carebridge/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	participantsConnected *prometheus.GaugeVec
	queueDepth            *prometheus.GaugeVec
	callsActive           prometheus.Gauge

	// Counters
	consultationsCreated *prometheus.CounterVec
	callsStarted         prometheus.Counter
	callsEnded           *prometheus.CounterVec
	signalsForwarded     *prometheus.CounterVec
	signalsDropped       *prometheus.CounterVec

	// Histograms
	callSetupDuration prometheus.Histogram
	callDuration      prometheus.Histogram
}

// NewPrometheusCollector registers the service metrics with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		participantsConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carebridge_participants_connected",
			Help: "Number of participants with an open signaling channel",
		}, []string{"role"}),

		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carebridge_queue_depth",
			Help: "Waiting consultations by urgency level",
		}, []string{"urgency"}),

		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carebridge_calls_active",
			Help: "Calls that are connecting or active",
		}),

		consultationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_consultations_created_total",
			Help: "Consultations created by urgency level",
		}, []string{"urgency"}),

		callsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "carebridge_calls_started_total",
			Help: "Calls started by providers",
		}),

		callsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_calls_ended_total",
			Help: "Calls ended by reason",
		}, []string{"reason"}),

		signalsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_signals_forwarded_total",
			Help: "Signaling messages relayed to the counterpart",
		}, []string{"kind"}),

		signalsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_signals_dropped_total",
			Help: "Signaling messages dropped by the relay",
		}, []string{"kind", "reason"}),

		callSetupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carebridge_call_setup_duration_seconds",
			Help:    "Time from call start to acceptance",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		callDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carebridge_call_duration_seconds",
			Help:    "Duration of accepted calls",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		}),
	}
}

func (p *PrometheusCollector) ParticipantConnected(role domain.Role) {
	p.participantsConnected.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) ParticipantDisconnected(role domain.Role) {
	p.participantsConnected.WithLabelValues(string(role)).Dec()
}

func (p *PrometheusCollector) QueueDepth(byUrgency map[domain.Urgency]int) {
	for urgency, n := range byUrgency {
		p.queueDepth.WithLabelValues(string(urgency)).Set(float64(n))
	}
}

func (p *PrometheusCollector) ConsultationCreated(urgency domain.Urgency) {
	p.consultationsCreated.WithLabelValues(string(urgency)).Inc()
}

func (p *PrometheusCollector) CallStarted() {
	p.callsStarted.Inc()
	p.callsActive.Inc()
}

func (p *PrometheusCollector) CallAccepted(setup time.Duration) {
	p.callSetupDuration.Observe(setup.Seconds())
}

func (p *PrometheusCollector) CallEnded(reason domain.EndReason, duration time.Duration) {
	p.callsActive.Dec()
	p.callsEnded.WithLabelValues(string(reason)).Inc()
	if duration > 0 {
		p.callDuration.Observe(duration.Seconds())
	}
}

func (p *PrometheusCollector) SignalForwarded(kind domain.SignalKind) {
	p.signalsForwarded.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) SignalDropped(kind domain.SignalKind, reason string) {
	p.signalsDropped.WithLabelValues(string(kind), reason).Inc()
}
