package assign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbot-service/internal/automation/browser"
	resdomain "courtbot-service/internal/reservations/domain"
)

func record(id string, userID int64, priority int, createdAt time.Time, courts ...int) resdomain.Record {
	p := priority
	return resdomain.Record{
		ID:               id,
		UserID:           userID,
		TargetDate:       "2025-07-14",
		TargetTime:       "08:00",
		CourtPreferences: courts,
		Status:           resdomain.StatusScheduled,
		Priority:         &p,
		CreatedAt:        createdAt,
	}
}

func TestBuildPlan_PriorityThenFIFO(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	records := []resdomain.Record{
		record("regular-early", 1, 2, base, 1, 2, 3),
		record("vip", 2, 1, base.Add(time.Hour), 1, 2, 3),
		record("admin", 3, 0, base.Add(2*time.Hour), 1, 2, 3),
		record("regular-late", 4, 2, base.Add(3*time.Hour), 1, 2, 3),
	}

	plan := BuildPlan(records, []int{1, 2, 3})

	require.Len(t, plan.Confirmed, 3)
	assert.Equal(t, "admin", plan.Confirmed[0].ID)
	assert.Equal(t, "vip", plan.Confirmed[1].ID)
	assert.Equal(t, "regular-early", plan.Confirmed[2].ID, "FIFO breaks the regular tie")

	require.Len(t, plan.Waitlisted, 1)
	assert.Equal(t, "regular-late", plan.Waitlisted[0].ID)
}

func TestBuildPlan_ConflictFallsThroughPreferences(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	records := []resdomain.Record{
		record("vip", 1, 1, base, 1, 3),
		record("regular", 2, 2, base, 1, 2),
	}

	plan := BuildPlan(records, []int{1, 2, 3})

	require.Len(t, plan.Assignments, 2)
	assert.Equal(t, 1, plan.Assignments[0].TargetCourt, "higher priority keeps court 1")
	assert.Equal(t, "vip", plan.Assignments[0].Record.ID)
	assert.Equal(t, 2, plan.Assignments[1].TargetCourt, "loser falls through to next preference")
	assert.Equal(t, "regular", plan.Assignments[1].Record.ID)
}

func TestBuildPlan_UnsatisfiablePreferenceWaitlists(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	records := []resdomain.Record{
		record("wants-one", 1, 1, base, 1),
		record("also-wants-one", 2, 2, base, 1),
	}

	plan := BuildPlan(records, []int{1, 2, 3})

	require.Len(t, plan.Confirmed, 1)
	assert.Equal(t, "wants-one", plan.Confirmed[0].ID)
	require.Len(t, plan.Waitlisted, 1)
	assert.Equal(t, "also-wants-one", plan.Waitlisted[0].ID)
}

func TestBuildPlan_CapacityFollowsAvailableCourts(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	// Courts 1 and 3 survived recovery; three requests for the slot.
	records := []resdomain.Record{
		record("a", 1, 2, base, 1, 2, 3),
		record("b", 2, 2, base.Add(time.Minute), 2, 1, 3),
		record("c", 3, 2, base.Add(2*time.Minute), 3, 2, 1),
	}

	plan := BuildPlan(records, []int{1, 3})

	require.Len(t, plan.Confirmed, 2)
	require.Len(t, plan.Waitlisted, 1)
	assert.Equal(t, "c", plan.Waitlisted[0].ID)

	courts := []int{plan.Assignments[0].TargetCourt, plan.Assignments[1].TargetCourt}
	assert.ElementsMatch(t, []int{1, 3}, courts)
}

func TestBuildPlan_EmergencyCourtNeverAutoAssigned(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	records := []resdomain.Record{
		record("a", 1, 2, base, 1, 2, 3, browser.EmergencyCourt),
	}

	plan := BuildPlan(records, []int{browser.EmergencyCourt})

	assert.Empty(t, plan.Confirmed)
	require.Len(t, plan.Waitlisted, 1)
}

func TestBuildPlan_BrowserFollowsCourtIdentity(t *testing.T) {
	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	records := []resdomain.Record{record("a", 1, 2, base, 2)}
	plan := BuildPlan(records, []int{1, 2, 3})

	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, 2, plan.Assignments[0].TargetCourt)
	assert.Equal(t, 2, plan.Assignments[0].BrowserID)
	assert.Equal(t, 1, plan.Assignments[0].AttemptNumber)
}
