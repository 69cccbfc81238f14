package scheduler

import (
	"sort"
	"time"

	resdomain "courtbot-service/internal/reservations/domain"
)

// healthCheckHorizon is how far before execution a batch gets its
// warm-up health gate.
const healthCheckHorizon = 6 * time.Minute

// Batch groups pending reservations targeting the same slot
type Batch struct {
	TargetDate string
	TargetTime string
	Records    []resdomain.Record
}

// Evaluation buckets pending records by execution readiness
type Evaluation struct {
	Ready       []Batch
	HealthCheck []Batch
}

// Evaluate splits pending records into batches that are due now and
// batches close enough to warrant a pre-window health check. Records
// with no usable execution time are skipped.
func Evaluate(pending []resdomain.Record, now time.Time) Evaluation {
	ready := make(map[string][]resdomain.Record)
	healthCheck := make(map[string][]resdomain.Record)

	for _, record := range pending {
		if record.ScheduledExecution.IsZero() {
			continue
		}

		key := record.TargetDate + "_" + record.TargetTime
		until := record.ScheduledExecution.Sub(now)
		switch {
		case until <= 0:
			ready[key] = append(ready[key], record)
		case until <= healthCheckHorizon:
			healthCheck[key] = append(healthCheck[key], record)
		}
	}

	return Evaluation{
		Ready:       toBatches(ready),
		HealthCheck: toBatches(healthCheck),
	}
}

func toBatches(groups map[string][]resdomain.Record) []Batch {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	batches := make([]Batch, 0, len(keys))
	for _, key := range keys {
		records := groups[key]
		batches = append(batches, Batch{
			TargetDate: records[0].TargetDate,
			TargetTime: records[0].TargetTime,
			Records:    records,
		})
	}
	return batches
}
