package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the scheduler loop does. Exposed on the ops
// server's /metrics endpoint.
type Metrics struct {
	Polls        prometheus.Counter
	Batches      prometheus.Counter
	Attempts     prometheus.Counter
	Successes    prometheus.Counter
	Failures     prometheus.Counter
	Timeouts     prometheus.Counter
	GateFailures prometheus.Counter
	Waitlisted   prometheus.Counter
}

// NewMetrics registers the scheduler counters on the registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "polls_total", Help: "Scheduler loop iterations.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "batches_total", Help: "Batches dispatched for execution.",
		}),
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "attempts_total", Help: "Booking attempts dispatched.",
		}),
		Successes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "successes_total", Help: "Booking attempts that secured a slot.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "failures_total", Help: "Booking attempts that failed.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "timeouts_total", Help: "Attempts cancelled by the dispatch budget.",
		}),
		GateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "gate_failures_total", Help: "Health gates that could not restore the pool.",
		}),
		Waitlisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbot", Subsystem: "scheduler",
			Name: "waitlisted_total", Help: "Reservations placed on the waitlist.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Polls, m.Batches, m.Attempts, m.Successes,
			m.Failures, m.Timeouts, m.GateFailures, m.Waitlisted,
		)
	}
	return m
}
