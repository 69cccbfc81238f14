package assign

import (
	"sort"

	"courtbot-service/internal/automation/browser"
	resdomain "courtbot-service/internal/reservations/domain"
)

// Assignment pairs a reservation with the court and browser that will
// try to book it. Browsers are keyed by court identity.
type Assignment struct {
	BrowserID     int
	TargetCourt   int
	Record        resdomain.Record
	AttemptNumber int
}

// Plan is the outcome of dividing one slot's records over the pool.
type Plan struct {
	Confirmed   []resdomain.Record
	Waitlisted  []resdomain.Record
	Assignments []Assignment
}

// BuildPlan decides who gets which court on which browser for a batch
// of records targeting the same slot. Records are ranked by tier
// priority, FIFO on ties; capacity equals the number of courts the pool
// can actually serve. Court preferences are honored in order, higher
// priority winning conflicts. Records with no satisfiable preference
// join the waitlist.
func BuildPlan(records []resdomain.Record, availableCourts []int) Plan {
	ranked := make([]resdomain.Record, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i].EffectivePriority(), ranked[j].EffectivePriority()
		if pi != pj {
			return pi < pj
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})

	available := make(map[int]bool, len(availableCourts))
	for _, court := range availableCourts {
		// The emergency fallback is only ever mapped explicitly by
		// recovery, never handed out here.
		if court == browser.EmergencyCourt {
			continue
		}
		available[court] = true
	}

	var plan Plan
	taken := make(map[int]bool)
	for _, record := range ranked {
		if len(plan.Confirmed) >= len(available) {
			plan.Waitlisted = append(plan.Waitlisted, record)
			continue
		}

		court, ok := resolveCourt(record.CourtPreferences, available, taken)
		if !ok {
			plan.Waitlisted = append(plan.Waitlisted, record)
			continue
		}

		taken[court] = true
		plan.Confirmed = append(plan.Confirmed, record)
		plan.Assignments = append(plan.Assignments, Assignment{
			BrowserID:     court,
			TargetCourt:   court,
			Record:        record,
			AttemptNumber: record.Attempts + 1,
		})
	}

	return plan
}

// resolveCourt walks the preference list for the first free, healthy court
func resolveCourt(preferences []int, available, taken map[int]bool) (int, bool) {
	for _, court := range preferences {
		if available[court] && !taken[court] {
			return court, true
		}
	}
	return 0, false
}
