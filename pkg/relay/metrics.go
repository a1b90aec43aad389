package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	intakesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aliasrelay",
			Subsystem: "relay",
			Name:      "intakes_total",
			Help:      "Messages handed to the pipeline by the intake listener",
		},
	)
	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aliasrelay",
			Subsystem: "relay",
			Name:      "outcomes_total",
			Help:      "Pipeline runs by terminal outcome",
		},
		[]string{"outcome"},
	)
	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aliasrelay",
			Subsystem: "relay",
			Name:      "inflight",
			Help:      "Pipelines currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(intakesTotal, outcomesTotal, inflight)
}
