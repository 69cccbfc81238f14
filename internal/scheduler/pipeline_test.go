package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	resdomain "courtbot-service/internal/reservations/domain"
)

func pendingRecord(id, date, clock string, execIn time.Duration, now time.Time) resdomain.Record {
	return resdomain.Record{
		ID:                 id,
		UserID:             1,
		TargetDate:         date,
		TargetTime:         clock,
		CourtPreferences:   []int{1},
		Status:             resdomain.StatusScheduled,
		ScheduledExecution: now.Add(execIn),
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 7, 12, 7, 59, 30, 0, time.UTC)

	pending := []resdomain.Record{
		pendingRecord("due-a", "2025-07-14", "08:00", -time.Second, now),
		pendingRecord("due-b", "2025-07-14", "08:00", 0, now),
		pendingRecord("warm", "2025-07-14", "09:00", 5*time.Minute, now),
		pendingRecord("distant", "2025-07-15", "08:00", 2*time.Hour, now),
		{ID: "broken", TargetDate: "2025-07-14", TargetTime: "10:00", Status: resdomain.StatusScheduled},
	}

	evaluation := Evaluate(pending, now)

	require.Len(t, evaluation.Ready, 1)
	assert.Equal(t, "2025-07-14", evaluation.Ready[0].TargetDate)
	assert.Equal(t, "08:00", evaluation.Ready[0].TargetTime)
	assert.Len(t, evaluation.Ready[0].Records, 2, "same-slot records batch together")

	require.Len(t, evaluation.HealthCheck, 1)
	assert.Equal(t, "09:00", evaluation.HealthCheck[0].TargetTime)
}

func TestEvaluate_EmptyInput(t *testing.T) {
	evaluation := Evaluate(nil, time.Now())
	assert.Empty(t, evaluation.Ready)
	assert.Empty(t, evaluation.HealthCheck)
}

func TestEvaluate_BatchesSortedDeterministically(t *testing.T) {
	now := time.Now()
	pending := []resdomain.Record{
		pendingRecord("b", "2025-07-14", "18:00", -time.Minute, now),
		pendingRecord("a", "2025-07-14", "08:00", -time.Minute, now),
	}

	evaluation := Evaluate(pending, now)
	require.Len(t, evaluation.Ready, 2)
	assert.Equal(t, "08:00", evaluation.Ready[0].TargetTime)
	assert.Equal(t, "18:00", evaluation.Ready[1].TargetTime)
}
