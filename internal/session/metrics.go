package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camview",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently holding a transport",
	})

	transportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camview",
		Subsystem: "session",
		Name:      "transport_errors_total",
		Help:      "Playback errors reported by the transport, by code",
	}, []string{"code"})

	seeksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camview",
		Subsystem: "session",
		Name:      "seeks_total",
		Help:      "Timestamp seeks by outcome",
	}, []string{"result"})

	timeSyncChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camview",
		Subsystem: "session",
		Name:      "time_sync_checks_total",
		Help:      "Clock sync checks by classification",
	}, []string{"kind"})
)

const (
	seekSucceeded = "success"
	seekRejected  = "rejected"
	seekFailed    = "failed"
	seekCanceled  = "canceled"
)
