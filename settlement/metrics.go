package settlement

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus collectors the executor updates as it
// processes settlements. One metrics instance per Executor; Register
// wires it into a caller-supplied registry.
type metrics struct {
	inFlight  prometheus.Gauge
	completed prometheus.Counter
	failed    prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "connectord",
			Subsystem: "settlement",
			Name:      "in_flight_settlements",
			Help:      "Number of settlements currently being processed across all peers.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connectord",
			Subsystem: "settlement",
			Name:      "completed_total",
			Help:      "Total number of settlements that completed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connectord",
			Subsystem: "settlement",
			Name:      "failed_total",
			Help:      "Total number of settlements that exhausted retries or hit a non-retryable error.",
		}),
	}
}

// Register adds the executor's collectors to reg. Safe to call once per
// Executor instance.
func (e *Executor) Register(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{e.metrics.inFlight, e.metrics.completed, e.metrics.failed} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
