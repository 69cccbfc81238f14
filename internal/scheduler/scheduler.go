package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	booking "courtbot-service/internal/booking/domain"
	"courtbot-service/internal/config"
	resdomain "courtbot-service/internal/reservations/domain"
	"courtbot-service/internal/reservations/queue"
	"courtbot-service/internal/scheduler/assign"
	"courtbot-service/internal/users"
	"courtbot-service/internal/venue"
)

// Pool is the slice of the browser pool the scheduler drives.
type Pool interface {
	GetPage(ctx context.Context, court int) (browser.Page, error)
	RefreshPages(ctx context.Context) map[int]bool
	AvailableCourts() []int
	SetCriticalOperation(active bool)
}

// Gate runs the health/recovery check before a batch may execute.
type Gate interface {
	Gate(ctx context.Context, errorContext string) error
}

// Executor runs one booking attempt to completion.
type Executor interface {
	Execute(ctx context.Context, page browser.Page, req booking.Request, court int) booking.Result
}

// Recorder persists outcomes and sends the final notification.
type Recorder interface {
	Record(ctx context.Context, result booking.Result) error
}

// Notifier covers the scheduler's advisory sends.
type Notifier interface {
	NotifyWaitlisted(ctx context.Context, record resdomain.Record, position int)
	NotifyDelay(ctx context.Context, record resdomain.Record)
	NotifyPromotion(ctx context.Context, record resdomain.Record)
}

// Scheduler is the heartbeat of the system: poll the queue, bucket by
// fire time, gate on pool health, assign courts, and dispatch attempts
// as the 48-hour window opens.
type Scheduler struct {
	queue    *queue.Queue
	users    users.Store
	pool     Pool
	gate     Gate
	executor Executor
	recorder Recorder
	notifier Notifier
	venue    *venue.Venue
	metrics  *Metrics
	logger   *zap.Logger

	pollInterval    time.Duration
	dispatchTimeout time.Duration

	clock func() time.Time
}

// Dependencies wires a scheduler.
type Dependencies struct {
	Queue    *queue.Queue
	Users    users.Store
	Pool     Pool
	Gate     Gate
	Executor Executor
	Recorder Recorder
	Notifier Notifier
	Venue    *venue.Venue
	Metrics  *Metrics
}

// New builds the scheduler loop
func New(deps Dependencies, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	dispatchTimeout := cfg.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = 60 * time.Second
	}
	return &Scheduler{
		queue:           deps.Queue,
		users:           deps.Users,
		pool:            deps.Pool,
		gate:            deps.Gate,
		executor:        deps.Executor,
		recorder:        deps.Recorder,
		notifier:        deps.Notifier,
		venue:           deps.Venue,
		metrics:         deps.Metrics,
		logger:          logger.Named("scheduler"),
		pollInterval:    pollInterval,
		dispatchTimeout: dispatchTimeout,
		clock:           time.Now,
	}
}

// Run is the long-lived poll loop. It exits cleanly on cancellation,
// cancelling outstanding attempts and force-clearing the pool's
// critical flag.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("poll_interval", s.pollInterval))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.pool.SetCriticalOperation(false)
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler iteration
func (s *Scheduler) Tick(ctx context.Context) {
	s.metrics.Polls.Inc()

	now := s.clock().In(s.venue.Location())
	pending := s.queue.ListPending(ctx)
	if len(pending) == 0 {
		return
	}

	evaluation := Evaluate(pending, now)

	// Warm the system shortly before windows open, without booking.
	for _, batch := range evaluation.HealthCheck {
		s.logger.Info("pre-execution health check",
			zap.String("slot", batch.TargetDate+" "+batch.TargetTime),
			zap.Int("records", len(batch.Records)),
		)
		if err := s.gate.Gate(ctx, "pre-window warmup"); err != nil {
			s.logger.Warn("pre-window health gate failed", zap.Error(err))
		}
	}

	// Batches run sequentially; attempts within one batch fan out.
	for _, batch := range evaluation.Ready {
		if ctx.Err() != nil {
			return
		}
		s.executeBatch(ctx, batch)
	}
}

func (s *Scheduler) executeBatch(ctx context.Context, batch Batch) {
	s.metrics.Batches.Inc()
	logger := s.logger.With(zap.String("slot", batch.TargetDate+" "+batch.TargetTime))
	logger.Info("executing batch", zap.Int("records", len(batch.Records)))

	records, requests := s.hydrate(ctx, batch)
	if len(records) == 0 {
		return
	}

	if err := s.gate.Gate(ctx, "batch dispatch"); err != nil {
		s.metrics.GateFailures.Inc()
		logger.Error("health gate failed, deferring batch", zap.Error(err))
		// Records stay SCHEDULED for the next poll; users get an advisory.
		for _, record := range records {
			s.notifier.NotifyDelay(ctx, record)
		}
		return
	}

	s.pool.RefreshPages(ctx)

	plan := assign.BuildPlan(records, s.pool.AvailableCourts())
	s.placeWaitlisted(ctx, plan.Waitlisted, logger)

	if len(plan.Assignments) == 0 {
		return
	}

	results := s.dispatch(ctx, plan.Assignments, requests, logger)
	for _, result := range results {
		if result.Success() {
			s.metrics.Successes.Inc()
		} else {
			s.metrics.Failures.Inc()
		}
		if err := s.recorder.Record(ctx, result); err != nil {
			logger.Error("failed to record outcome",
				zap.String("request_id", result.RequestID), zap.Error(err))
		}
	}
}

// hydrate builds one BookingRequest per record from the user store.
// Records whose profile is gone or invalid are marked FAILED and
// excluded.
func (s *Scheduler) hydrate(ctx context.Context, batch Batch) ([]resdomain.Record, map[string]booking.Request) {
	var usable []resdomain.Record
	requests := make(map[string]booking.Request, len(batch.Records))

	now := s.clock().In(s.venue.Location())
	for _, record := range batch.Records {
		if target, err := s.queue.Service().TargetDateTime(record); err == nil && target.Before(now) {
			s.logger.Warn("reservation target already passed, expiring",
				zap.String("id", record.ID))
			if _, uerr := s.queue.UpdateStatus(ctx, record.ID, resdomain.StatusExpired); uerr != nil {
				s.logger.Error("failed to expire reservation", zap.Error(uerr))
			}
			continue
		}

		request, profile, err := s.buildRequest(ctx, record)
		if err != nil {
			s.logger.Warn("could not prepare request",
				zap.String("id", record.ID),
				zap.Int64("user_id", record.UserID),
				zap.Error(err),
			)
			if _, uerr := s.queue.UpdateStatus(ctx, record.ID, resdomain.StatusFailed,
				queue.WithLastError("could not prepare request")); uerr != nil {
				s.logger.Error("failed to mark hydration failure", zap.Error(uerr))
			}
			continue
		}
		if record.Priority == nil {
			priority := profile.Priority()
			record.Priority = &priority
		}
		usable = append(usable, record)
		requests[record.ID] = request
	}
	return usable, requests
}

func (s *Scheduler) buildRequest(ctx context.Context, record resdomain.Record) (booking.Request, booking.User, error) {
	profile, err := s.users.Get(ctx, record.UserID)
	if err != nil {
		return booking.Request{}, booking.User{}, err
	}
	if err := profile.Validate(); err != nil {
		return booking.Request{}, booking.User{}, err
	}

	metadata := booking.ComposeMetadata(booking.SourceQueued, record.TargetDate, record.TargetTime, record.Metadata)
	request, err := booking.NewQueuedRequest(record.ID, profile, record.TargetDate, record.TargetTime,
		record.CourtPreferences, booking.SourceQueued, metadata, record.ExecutorConfig)
	if err != nil {
		return booking.Request{}, booking.User{}, err
	}
	return request, profile, nil
}

func (s *Scheduler) placeWaitlisted(ctx context.Context, waitlisted []resdomain.Record, logger *zap.Logger) {
	for i, record := range waitlisted {
		position := i + 1
		if err := s.queue.AddToWaitlist(ctx, record.ID, position); err != nil {
			logger.Error("failed to waitlist reservation",
				zap.String("id", record.ID), zap.Error(err))
			continue
		}
		s.metrics.Waitlisted.Inc()
		s.notifier.NotifyWaitlisted(ctx, record, position)
	}
}

// dispatch fans the batch out, one goroutine per attempt, each bounded
// by the dispatch wall clock. The pool's critical flag is held for the
// whole batch and force-cleared afterwards, whatever happened inside.
func (s *Scheduler) dispatch(ctx context.Context, assignments []assign.Assignment, requests map[string]booking.Request, logger *zap.Logger) []booking.Result {
	s.pool.SetCriticalOperation(true)
	defer s.pool.SetCriticalOperation(false)

	results := make([]booking.Result, len(assignments))
	var wg sync.WaitGroup
	for i, assignment := range assignments {
		request, ok := requests[assignment.Record.ID]
		if !ok {
			continue
		}

		if _, err := s.queue.UpdateStatus(ctx, assignment.Record.ID, resdomain.StatusBookingInProgress,
			queue.WithAttemptCount(assignment.AttemptNumber)); err != nil {
			logger.Error("failed to mark booking in progress",
				zap.String("id", assignment.Record.ID), zap.Error(err))
		}

		wg.Add(1)
		go func(i int, assignment assign.Assignment, request booking.Request) {
			defer wg.Done()
			results[i] = s.runAttempt(ctx, assignment, request, logger)
		}(i, assignment, request)
	}
	wg.Wait()

	out := make([]booking.Result, 0, len(results))
	for _, result := range results {
		if result.RequestID != "" || result.User.ID != 0 {
			out = append(out, result)
		}
	}
	return out
}

func (s *Scheduler) runAttempt(ctx context.Context, assignment assign.Assignment, request booking.Request, logger *zap.Logger) booking.Result {
	s.metrics.Attempts.Inc()

	attemptCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	page, err := s.pool.GetPage(attemptCtx, assignment.BrowserID)
	if err != nil {
		logger.Error("no browser page for attempt",
			zap.Int("court", assignment.BrowserID), zap.Error(err))
		return booking.FailureResult(request.User, request.RequestID,
			booking.WithMessage("system issue: browser unavailable"),
			booking.WithErrors(err.Error()),
		)
	}

	done := make(chan booking.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- booking.FailureResult(request.User, request.RequestID,
					booking.WithMessage(fmt.Sprintf("attempt panicked: %v", r)))
			}
		}()
		done <- s.executor.Execute(attemptCtx, page, request, assignment.TargetCourt)
	}()

	select {
	case result := <-done:
		return result
	case <-attemptCtx.Done():
		s.metrics.Timeouts.Inc()
		seconds := int(s.dispatchTimeout.Seconds())
		logger.Warn("attempt exceeded dispatch budget",
			zap.String("id", assignment.Record.ID),
			zap.Int("budget_seconds", seconds),
		)
		return booking.FailureResult(request.User, request.RequestID,
			booking.WithMessage(fmt.Sprintf("Booking timed out after %d seconds", seconds)),
		)
	}
}

// HandleCancellation cancels a reservation and, when it was confirmed,
// promotes the slot's waitlist head, notifying the promoted user.
// Exposed to the chat layer.
func (s *Scheduler) HandleCancellation(ctx context.Context, reservationID string) error {
	promoted, err := s.queue.Cancel(ctx, reservationID)
	if err != nil {
		return err
	}
	if promoted != nil {
		s.notifier.NotifyPromotion(ctx, *promoted)
	}
	return nil
}
