package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	"courtbot-service/internal/config"
	"courtbot-service/pkg/errors"
)

const partialPoolStagger = 1500 * time.Millisecond

// PoolController is the slice of the browser pool the strategies drive.
type PoolController interface {
	Courts() []int
	AvailableCourts() []int
	RecreateCourt(ctx context.Context, court int) error
	Restart(ctx context.Context) error
	StartEmergencyBrowser(ctx context.Context) error
	HealthCheck(ctx context.Context) browser.HealthReport
}

// Orchestrator restores the pool when health degrades, escalating
// through strategies until one works. A single mutex serializes runs so
// overlapping failures cannot compound.
type Orchestrator struct {
	mu sync.Mutex

	pool        PoolController
	logger      *zap.Logger
	timeout     time.Duration
	maxAttempts int

	history         []Attempt
	emergencyActive bool
}

// NewOrchestrator builds a recovery orchestrator over the pool
func NewOrchestrator(pool PoolController, cfg config.RecoveryConfig, logger *zap.Logger) *Orchestrator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(escalationOrder)
	}
	return &Orchestrator{
		pool:        pool,
		logger:      logger.Named("recovery"),
		timeout:     timeout,
		maxAttempts: maxAttempts,
	}
}

// selectInitial picks the entry strategy from the failure shape:
// everything down starts at a full restart, one court starts small.
func (o *Orchestrator) selectInitial(failedCourts []int) Strategy {
	total := len(o.pool.Courts())
	switch {
	case len(failedCourts) == 0 || len(failedCourts) >= total:
		return StrategyFullRestart
	case len(failedCourts) == 1:
		return StrategyIndividualCourt
	default:
		return StrategyPartialPool
	}
}

// Recover runs the escalation ladder for the failed courts. It returns
// the result of the first strategy that succeeds, or the last failure
// when every level is exhausted.
func (o *Orchestrator) Recover(ctx context.Context, failedCourts []int, errorContext string) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	initial := o.selectInitial(failedCourts)

	o.logger.Warn("starting pool recovery",
		zap.Ints("failed_courts", failedCourts),
		zap.String("initial_strategy", string(initial)),
		zap.String("context", errorContext),
	)

	var last Result
	for tried, strategy := range ladderFrom(initial) {
		if tried >= o.maxAttempts {
			break
		}
		result := o.execute(ctx, strategy, failedCourts)
		o.history = append(o.history, result.Attempts...)
		last = result

		if result.Success {
			result.TotalDuration = time.Since(start)
			o.logger.Info("pool recovery succeeded",
				zap.String("strategy", string(strategy)),
				zap.Ints("courts_recovered", result.CourtsRecovered),
				zap.Duration("took", result.TotalDuration),
			)
			return result
		}

		o.logger.Warn("recovery strategy failed, escalating",
			zap.String("strategy", string(strategy)),
			zap.String("error", result.ErrorDetails),
		)

		if ctx.Err() != nil {
			break
		}
	}

	last.TotalDuration = time.Since(start)
	o.logger.Error("pool recovery exhausted all strategies",
		zap.Duration("took", last.TotalDuration))
	return last
}

func ladderFrom(initial Strategy) []Strategy {
	for i, s := range escalationOrder {
		if s == initial {
			return escalationOrder[i:]
		}
	}
	return escalationOrder
}

// execute runs one strategy under its time budget
func (o *Orchestrator) execute(ctx context.Context, strategy Strategy, failedCourts []int) Result {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	switch strategy {
	case StrategyIndividualCourt:
		return o.recoverIndividual(runCtx, failedCourts)
	case StrategyPartialPool:
		return o.recoverPartial(runCtx, failedCourts)
	case StrategyFullRestart:
		return o.recoverFull(runCtx)
	case StrategyEmergencyFallback:
		return o.recoverEmergency(runCtx)
	}
	return Result{
		Success:      false,
		StrategyUsed: strategy,
		Message:      "unknown strategy",
	}
}

func (o *Orchestrator) recoverIndividual(ctx context.Context, failedCourts []int) Result {
	courts := failedCourts
	if len(courts) == 0 {
		courts = o.pool.Courts()
	}
	court := courts[0]

	start := time.Now()
	attempt := Attempt{
		Strategy:       StrategyIndividualCourt,
		Timestamp:      start,
		CourtsAffected: []int{court},
	}

	o.logger.Info("recovering individual court", zap.Int("court", court))
	err := o.pool.RecreateCourt(ctx, court)
	attempt.Duration = time.Since(start)
	attempt.Success = err == nil

	if err != nil {
		attempt.ErrorMessage = err.Error()
		return Result{
			Success:      false,
			StrategyUsed: StrategyIndividualCourt,
			CourtsFailed: []int{court},
			Message:      fmt.Sprintf("Failed to recover court %d", court),
			ErrorDetails: err.Error(),
			Attempts:     []Attempt{attempt},
		}
	}

	return Result{
		Success:         true,
		StrategyUsed:    StrategyIndividualCourt,
		CourtsRecovered: []int{court},
		Message:         fmt.Sprintf("Successfully recovered court %d", court),
		Attempts:        []Attempt{attempt},
	}
}

func (o *Orchestrator) recoverPartial(ctx context.Context, failedCourts []int) Result {
	courts := failedCourts
	if len(courts) == 0 {
		courts = o.pool.Courts()
	}

	start := time.Now()
	attempt := Attempt{
		Strategy:       StrategyPartialPool,
		Timestamp:      start,
		CourtsAffected: append([]int(nil), courts...),
	}

	o.logger.Info("recovering partial pool", zap.Ints("courts", courts))

	type outcome struct {
		court int
		err   error
	}
	results := make(chan outcome, len(courts))
	var wg sync.WaitGroup
	for index, court := range courts {
		wg.Add(1)
		go func(index, court int) {
			defer wg.Done()
			// Stagger recreations so the venue doesn't see a burst.
			select {
			case <-time.After(time.Duration(index) * partialPoolStagger):
			case <-ctx.Done():
				results <- outcome{court: court, err: ctx.Err()}
				return
			}
			results <- outcome{court: court, err: o.pool.RecreateCourt(ctx, court)}
		}(index, court)
	}
	wg.Wait()
	close(results)

	var recovered, failed []int
	for r := range results {
		if r.err != nil {
			o.logger.Error("failed to recover court", zap.Int("court", r.court), zap.Error(r.err))
			failed = append(failed, r.court)
		} else {
			recovered = append(recovered, r.court)
		}
	}

	attempt.Duration = time.Since(start)
	attempt.Success = len(recovered) > 0

	return Result{
		Success:         len(recovered) > 0,
		StrategyUsed:    StrategyPartialPool,
		CourtsRecovered: recovered,
		CourtsFailed:    failed,
		Message:         fmt.Sprintf("Recovered %d/%d courts", len(recovered), len(courts)),
		Attempts:        []Attempt{attempt},
	}
}

func (o *Orchestrator) recoverFull(ctx context.Context) Result {
	allCourts := o.pool.Courts()

	start := time.Now()
	attempt := Attempt{
		Strategy:       StrategyFullRestart,
		Timestamp:      start,
		CourtsAffected: append([]int(nil), allCourts...),
	}

	o.logger.Warn("performing full browser pool restart")
	err := o.pool.Restart(ctx)
	if err != nil {
		attempt.Duration = time.Since(start)
		attempt.ErrorMessage = err.Error()
		return Result{
			Success:      false,
			StrategyUsed: StrategyFullRestart,
			CourtsFailed: allCourts,
			Message:      "Exception during full pool restart",
			ErrorDetails: err.Error(),
			Attempts:     []Attempt{attempt},
		}
	}

	recovered := o.pool.AvailableCourts()
	var failed []int
	for _, court := range allCourts {
		if !containsInt(recovered, court) {
			failed = append(failed, court)
		}
	}

	attempt.Duration = time.Since(start)
	attempt.Success = len(recovered) > 0

	return Result{
		Success:         len(recovered) > 0,
		StrategyUsed:    StrategyFullRestart,
		CourtsRecovered: recovered,
		CourtsFailed:    failed,
		Message:         fmt.Sprintf("Full restart completed: %d/%d courts ready", len(recovered), len(allCourts)),
		Attempts:        []Attempt{attempt},
	}
}

func (o *Orchestrator) recoverEmergency(ctx context.Context) Result {
	start := time.Now()
	attempt := Attempt{
		Strategy:       StrategyEmergencyFallback,
		Timestamp:      start,
		CourtsAffected: []int{browser.EmergencyCourt},
	}

	o.logger.Error("activating emergency fallback browser")
	err := o.pool.StartEmergencyBrowser(ctx)
	attempt.Duration = time.Since(start)
	attempt.Success = err == nil

	if err != nil {
		attempt.ErrorMessage = err.Error()
		return Result{
			Success:      false,
			StrategyUsed: StrategyEmergencyFallback,
			CourtsFailed: []int{browser.EmergencyCourt},
			Message:      "Failed to activate emergency fallback",
			ErrorDetails: err.Error(),
			Attempts:     []Attempt{attempt},
		}
	}

	o.emergencyActive = true
	return Result{
		Success:         true,
		StrategyUsed:    StrategyEmergencyFallback,
		CourtsRecovered: []int{browser.EmergencyCourt},
		Message:         "Emergency browser activated - limited functionality available",
		Attempts:        []Attempt{attempt},
	}
}

// Gate checks pool health and runs recovery when courts are down.
// Returns ErrPoolUnhealthy when the pool cannot be brought back above
// critical. Used by the scheduler before every dispatch.
func (o *Orchestrator) Gate(ctx context.Context, errorContext string) error {
	report := o.pool.HealthCheck(ctx)
	if report.Overall == browser.HealthHealthy {
		return nil
	}

	var failed []int
	for court, detail := range report.Courts {
		if !detail.Status.Usable() {
			failed = append(failed, court)
		}
	}

	result := o.Recover(ctx, failed, errorContext)
	if result.Success {
		return nil
	}

	return errors.ErrPoolUnhealthy.WithDetails("strategy", string(result.StrategyUsed)).
		WithDetails("detail", result.Message)
}

// Stats reports totals, success rate, counts per strategy, and whether
// the emergency fallback is live.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := Stats{
		PerStrategy:     make(map[Strategy]int),
		EmergencyActive: o.emergencyActive,
	}
	for _, attempt := range o.history {
		stats.TotalAttempts++
		stats.PerStrategy[attempt.Strategy]++
		if attempt.Success {
			stats.Successes++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalAttempts)
	}
	return stats
}

// EmergencyActive reports whether bookings run through the fallback
func (o *Orchestrator) EmergencyActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emergencyActive
}

func containsInt(v []int, want int) bool {
	for _, x := range v {
		if x == want {
			return true
		}
	}
	return false
}
