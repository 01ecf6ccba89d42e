package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/timecrypt/vdf/model/vdf"
)

const namespaceVDF = "vdf"

// VDFCollector is the prometheus implementation of module.VDFMetrics.
type VDFCollector struct {
	submitted   *prometheus.CounterVec
	completed   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	verified    *prometheus.CounterVec
	duration    prometheus.Histogram
	queueLength prometheus.Gauge
}

// NewVDFCollector registers and returns the engine metrics collector.
func NewVDFCollector() *VDFCollector {

	vc := &VDFCollector{

		submitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceVDF,
			Name:      "instances_submitted_total",
			Help:      "count of accepted VDF submissions",
		}, []string{"backend"}),

		completed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceVDF,
			Name:      "instances_completed_total",
			Help:      "count of VDF instances whose sequential computation finished",
		}, []string{"backend"}),

		failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceVDF,
			Name:      "instances_failed_total",
			Help:      "count of VDF instances that became terminally failed",
		}, []string{"backend"}),

		verified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceVDF,
			Name:      "instances_verified_total",
			Help:      "count of VDF instances whose proof was verified",
		}, []string{"backend"}),

		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceVDF,
			Name:      "computation_duration_seconds",
			Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 1800},
			Help:      "wall-clock duration of sequential computations",
		}),

		queueLength: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceVDF,
			Name:      "pending_queue_length",
			Help:      "current length of the pending submission queue",
		}),
	}

	return vc
}

func (vc *VDFCollector) InstanceSubmitted(kind vdf.BackendKind) {
	vc.submitted.WithLabelValues(string(kind)).Inc()
}

func (vc *VDFCollector) InstanceCompleted(kind vdf.BackendKind, duration time.Duration) {
	vc.completed.WithLabelValues(string(kind)).Inc()
	vc.duration.Observe(duration.Seconds())
}

func (vc *VDFCollector) InstanceFailed(kind vdf.BackendKind) {
	vc.failed.WithLabelValues(string(kind)).Inc()
}

func (vc *VDFCollector) InstanceVerified(kind vdf.BackendKind) {
	vc.verified.WithLabelValues(string(kind)).Inc()
}

func (vc *VDFCollector) QueueLength(length int) {
	vc.queueLength.Set(float64(length))
}
