package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeReady   = "ready"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeAborted = "aborted"

	ReconcileNoop    = "noop"
	ReconcileChanged = "changed"
	ReconcileError   = "error"

	CreateOK       = "ok"
	CreateFailed   = "failed"
	CreateNoResult = "no_result"
)

var (
	registerOnce sync.Once

	provisionWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "provision",
			Name:      "waits_total",
			Help:      "Provisioning waits by terminal outcome.",
		},
		[]string{"outcome"},
	)
	provisionWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleetctl",
			Subsystem: "provision",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for containers to provision.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)
	provisionPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "provision",
			Name:      "polls_total",
			Help:      "Container status reads issued by the wait engine.",
		},
	)
	reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "profile",
			Name:      "reconciles_total",
			Help:      "Profile reconciliations by result.",
		},
		[]string{"result"},
	)
	coordinationWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "coordination",
			Name:      "writes_total",
			Help:      "Coordination marker writes.",
		},
		[]string{"success"},
	)
	creations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "lifecycle",
			Name:      "creations_total",
			Help:      "Container create requests by registry result.",
		},
		[]string{"result"},
	)
	destroys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "lifecycle",
			Name:      "destroys_total",
			Help:      "Best-effort container destroys.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			provisionWaits,
			provisionWaitDuration,
			provisionPolls,
			reconciles,
			coordinationWrites,
			creations,
			destroys,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordProvisionPoll() {
	RegisterMetrics()
	provisionPolls.Inc()
}

func RecordProvisionWait(outcome string, elapsed time.Duration) {
	RegisterMetrics()
	provisionWaits.WithLabelValues(outcome).Inc()
	provisionWaitDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func RecordReconcile(result string) {
	RegisterMetrics()
	reconciles.WithLabelValues(result).Inc()
}

func RecordCoordinationWrite(success bool) {
	RegisterMetrics()
	if success {
		coordinationWrites.WithLabelValues("true").Inc()
		return
	}
	coordinationWrites.WithLabelValues("false").Inc()
}

func RecordCreate(result string) {
	RegisterMetrics()
	creations.WithLabelValues(result).Inc()
}

// RecordDestroy counts destroys; absent containers count as "absent".
func RecordDestroy(result string) {
	RegisterMetrics()
	destroys.WithLabelValues(result).Inc()
}
