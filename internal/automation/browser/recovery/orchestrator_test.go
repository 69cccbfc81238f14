package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	"courtbot-service/internal/config"
	"courtbot-service/pkg/errors"
)

// fakePool scripts pool behavior per strategy.
type fakePool struct {
	mu sync.Mutex

	courts          []int
	recreateErrs    map[int]error
	restartErr      error
	emergencyErr    error
	availableAfter  []int
	health          browser.HealthReport
	recreateCalls   []int
	restartCalls    int
	emergencyCalls  int
	healthCheckHits int
}

func (f *fakePool) Courts() []int { return f.courts }

func (f *fakePool) AvailableCourts() []int { return f.availableAfter }

func (f *fakePool) RecreateCourt(ctx context.Context, court int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recreateCalls = append(f.recreateCalls, court)
	if err, ok := f.recreateErrs[court]; ok {
		return err
	}
	return nil
}

func (f *fakePool) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalls++
	return f.restartErr
}

func (f *fakePool) StartEmergencyBrowser(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emergencyCalls++
	return f.emergencyErr
}

func (f *fakePool) HealthCheck(ctx context.Context) browser.HealthReport {
	f.healthCheckHits++
	return f.health
}

func newTestOrchestrator(pool *fakePool) *Orchestrator {
	return NewOrchestrator(pool, config.RecoveryConfig{Timeout: 5 * time.Second}, zap.NewNop())
}

func TestSelectInitial(t *testing.T) {
	pool := &fakePool{courts: []int{1, 2, 3}}
	o := newTestOrchestrator(pool)

	tests := []struct {
		name   string
		failed []int
		want   Strategy
	}{
		{name: "single court", failed: []int{2}, want: StrategyIndividualCourt},
		{name: "two courts", failed: []int{1, 3}, want: StrategyPartialPool},
		{name: "all courts", failed: []int{1, 2, 3}, want: StrategyFullRestart},
		{name: "unknown failure", failed: nil, want: StrategyFullRestart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.selectInitial(tt.failed))
		})
	}
}

func TestRecover_IndividualCourtSucceeds(t *testing.T) {
	pool := &fakePool{courts: []int{1, 2, 3}}
	o := newTestOrchestrator(pool)

	result := o.Recover(context.Background(), []int{2}, "dead page on court 2")

	assert.True(t, result.Success)
	assert.Equal(t, StrategyIndividualCourt, result.StrategyUsed)
	assert.Equal(t, []int{2}, result.CourtsRecovered)
	assert.Equal(t, []int{2}, pool.recreateCalls)
	assert.Zero(t, pool.restartCalls)
}

func TestRecover_EscalatesToPartialThenFull(t *testing.T) {
	pool := &fakePool{
		courts: []int{1, 2, 3},
		recreateErrs: map[int]error{
			1: errors.ErrInternal,
			3: errors.ErrInternal,
		},
		availableAfter: []int{1, 2, 3},
	}
	o := newTestOrchestrator(pool)

	result := o.Recover(context.Background(), []int{1, 3}, "two courts down")

	// Partial pool fails for both courts, escalation lands on full restart.
	assert.True(t, result.Success)
	assert.Equal(t, StrategyFullRestart, result.StrategyUsed)
	assert.Equal(t, 1, pool.restartCalls)
}

func TestRecover_PartialPoolCountsPartialSuccess(t *testing.T) {
	pool := &fakePool{
		courts:       []int{1, 2, 3},
		recreateErrs: map[int]error{3: errors.ErrInternal},
	}
	o := newTestOrchestrator(pool)

	result := o.Recover(context.Background(), []int{1, 3}, "courts 1 and 3 down")

	assert.True(t, result.Success)
	assert.Equal(t, StrategyPartialPool, result.StrategyUsed)
	assert.ElementsMatch(t, []int{1}, result.CourtsRecovered)
	assert.ElementsMatch(t, []int{3}, result.CourtsFailed)
}

func TestRecover_ExhaustsToEmergencyFallback(t *testing.T) {
	pool := &fakePool{
		courts:         []int{1, 2, 3},
		restartErr:     errors.ErrInternal,
		availableAfter: nil,
	}
	o := newTestOrchestrator(pool)

	result := o.Recover(context.Background(), nil, "engine gone")

	assert.True(t, result.Success)
	assert.Equal(t, StrategyEmergencyFallback, result.StrategyUsed)
	assert.Equal(t, []int{browser.EmergencyCourt}, result.CourtsRecovered)
	assert.True(t, o.EmergencyActive())
}

func TestRecover_AllStrategiesFail(t *testing.T) {
	pool := &fakePool{
		courts:       []int{1, 2, 3},
		restartErr:   errors.ErrInternal,
		emergencyErr: errors.ErrInternal,
	}
	o := newTestOrchestrator(pool)

	result := o.Recover(context.Background(), nil, "everything down")

	assert.False(t, result.Success)
	assert.Equal(t, StrategyEmergencyFallback, result.StrategyUsed)
	assert.False(t, o.EmergencyActive())
}

func TestGate(t *testing.T) {
	t.Run("healthy pool passes", func(t *testing.T) {
		pool := &fakePool{
			courts: []int{1, 2, 3},
			health: browser.HealthReport{Overall: browser.HealthHealthy},
		}
		o := newTestOrchestrator(pool)

		assert.NoError(t, o.Gate(context.Background(), "pre-dispatch"))
		assert.Zero(t, pool.restartCalls)
	})

	t.Run("degraded pool recovers", func(t *testing.T) {
		pool := &fakePool{
			courts: []int{1, 2, 3},
			health: browser.HealthReport{
				Overall: browser.HealthDegraded,
				Courts: map[int]browser.CourtHealth{
					1: {Court: 1, Status: browser.HealthHealthy},
					2: {Court: 2, Status: browser.HealthFailed},
					3: {Court: 3, Status: browser.HealthHealthy},
				},
			},
		}
		o := newTestOrchestrator(pool)

		require.NoError(t, o.Gate(context.Background(), "pre-dispatch"))
		assert.Equal(t, []int{2}, pool.recreateCalls)
	})

	t.Run("unrecoverable pool returns ErrPoolUnhealthy", func(t *testing.T) {
		pool := &fakePool{
			courts:       []int{1, 2, 3},
			restartErr:   errors.ErrInternal,
			emergencyErr: errors.ErrInternal,
			health: browser.HealthReport{
				Overall: browser.HealthFailed,
				Courts: map[int]browser.CourtHealth{
					1: {Court: 1, Status: browser.HealthFailed},
					2: {Court: 2, Status: browser.HealthFailed},
					3: {Court: 3, Status: browser.HealthFailed},
				},
			},
		}
		o := newTestOrchestrator(pool)

		err := o.Gate(context.Background(), "pre-dispatch")
		assert.ErrorIs(t, err, errors.ErrPoolUnhealthy)
	})
}

func TestStats(t *testing.T) {
	pool := &fakePool{courts: []int{1, 2, 3}}
	o := newTestOrchestrator(pool)

	o.Recover(context.Background(), []int{1}, "court 1 down")
	o.Recover(context.Background(), []int{2}, "court 2 down")

	stats := o.Stats()
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 2, stats.Successes)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.Equal(t, 2, stats.PerStrategy[StrategyIndividualCourt])
	assert.False(t, stats.EmergencyActive)
}
