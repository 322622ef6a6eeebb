package probe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camview",
		Subsystem: "probe",
		Name:      "attempts_total",
		Help:      "Reachability probes by result",
	}, []string{"result"})

	probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "camview",
		Subsystem: "probe",
		Name:      "duration_seconds",
		Help:      "Time spent per reachability probe",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

func observe(outcome Outcome, elapsed time.Duration) {
	probesTotal.WithLabelValues(string(outcome.Result)).Inc()
	probeDuration.Observe(elapsed.Seconds())
}
