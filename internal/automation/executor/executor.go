package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	"courtbot-service/internal/automation/forms"
	booking "courtbot-service/internal/booking/domain"
	"courtbot-service/internal/config"
	"courtbot-service/internal/venue"
	"courtbot-service/pkg/errors"
)

const (
	preWindowPoll   = 500 * time.Millisecond
	preTargetDelay  = 100 * time.Millisecond
	postTargetDelay = 2 * time.Second
)

// Executor runs one booking request end to end against one assigned
// browser page: wait out the pre-window, reach the form, fill, submit,
// classify.
type Executor struct {
	forms  *forms.Service
	venue  *venue.Venue
	logger *zap.Logger

	maxRetries    int
	attemptBudget time.Duration

	clock func() time.Time
}

// New builds a booking executor
func New(formService *forms.Service, v *venue.Venue, cfg config.SchedulerConfig, logger *zap.Logger) *Executor {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	budget := cfg.AttemptBudget
	if budget <= 0 {
		budget = 85 * time.Second
	}
	return &Executor{
		forms:         formService,
		venue:         v,
		logger:        logger.Named("executor"),
		maxRetries:    maxRetries,
		attemptBudget: budget,
		clock:         time.Now,
	}
}

// Execute runs the attempt state machine under the wall budget and
// always returns a classified result, never a raw error. The page is
// parked back on the court's schedule URL afterwards regardless of
// outcome.
func (e *Executor) Execute(ctx context.Context, page browser.Page, req booking.Request, court int) booking.Result {
	started := e.clock()
	logger := e.logger.With(
		zap.String("request_id", req.RequestID),
		zap.Int("court", court),
		zap.String("target_date", req.TargetDate),
		zap.String("target_time", req.TargetTime),
	)

	runCtx, cancel := context.WithTimeout(ctx, e.attemptBudget)
	defer cancel()

	result := e.run(runCtx, page, req, court, logger)
	result.StartedAt = started
	result.CompletedAt = e.clock()
	result = result.MergeMetadata(map[string]interface{}{
		"execution_seconds": result.CompletedAt.Sub(started).Seconds(),
	})

	e.cleanup(page, court, logger)
	return result
}

// run is the retry loop around single attempts
func (e *Executor) run(ctx context.Context, page browser.Page, req booking.Request, court int, logger *zap.Logger) booking.Result {
	target, err := req.TargetDateTime(e.venue.Location())
	if err != nil {
		return booking.FailureResult(req.User, req.RequestID,
			booking.WithMessage("could not resolve target datetime"),
			booking.WithErrors(err.Error()),
		)
	}
	windowOpen := e.venue.WindowOpen(target)

	heldSlot := e.awaitWindow(ctx, page, req, windowOpen, logger)
	if ctx.Err() != nil {
		return e.timeoutResult(req)
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		outcome, err := e.attemptOnce(ctx, page, req, court, heldSlot, logger)
		heldSlot = false // a held button is only good for the first click

		if err == nil {
			confirmationURL := ""
			if outcome.ConfirmationID != "" {
				confirmationURL = e.venue.ConfirmationURL(outcome.ConfirmationID)
			}
			logger.Info("booking attempt succeeded",
				zap.Int("attempt", attempt),
				zap.String("confirmation", outcome.ConfirmationID))
			return booking.SuccessResult(req.User, req.RequestID, court, req.TargetTime,
				booking.WithConfirmation(outcome.ConfirmationID, confirmationURL),
				booking.WithMessage(outcome.Message),
			)
		}

		lastErr = err
		if ctx.Err() != nil {
			return e.timeoutResult(req)
		}
		if !retryable(err) {
			logger.Warn("booking attempt hit non-retryable failure",
				zap.Int("attempt", attempt), zap.Error(err))
			return e.failureFor(req, err, outcome)
		}

		logger.Info("booking attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.maxRetries),
			zap.Error(err),
		)

		// Before play time the venue may still lift the slot, retry hot;
		// after it has passed, back off.
		delay := postTargetDelay
		if e.clock().Before(target) {
			delay = preTargetDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return e.timeoutResult(req)
		}
	}

	message := "booking failed after retries"
	if lastErr != nil {
		message = lastErr.Error()
	}
	return booking.FailureResult(req.User, req.RequestID,
		booking.WithMessage(message),
		booking.WithErrors(fmt.Sprintf("exhausted %d retries", e.maxRetries)),
	)
}

// awaitWindow holds the executor before window-open, probing the slot
// every half second. Returns whether the slot button was sighted early;
// the click itself never fires before windowOpen.
func (e *Executor) awaitWindow(ctx context.Context, page browser.Page, req booking.Request, windowOpen time.Time, logger *zap.Logger) bool {
	if !e.clock().Before(windowOpen) {
		return false
	}

	logger.Info("pre-window wait",
		zap.Time("window_open", windowOpen),
		zap.Duration("remaining", windowOpen.Sub(e.clock())),
	)

	found := false
	for e.clock().Before(windowOpen) {
		if !found {
			if err := page.Reload(ctx); err == nil {
				if visible, err := e.slotVisible(ctx, page, req.TargetTime); err == nil && visible {
					logger.Info("slot visible before window open, holding until it opens")
					found = true
				}
			}
		}

		remaining := windowOpen.Sub(e.clock())
		wait := preWindowPoll
		if remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return found
		}
	}
	return found
}

// attemptOnce is one pass of the post-window state machine
func (e *Executor) attemptOnce(ctx context.Context, page browser.Page, req booking.Request, court int, heldSlot bool, logger *zap.Logger) (forms.Outcome, error) {
	if heldSlot {
		// The slot button is already on screen from the pre-window probe.
		if err := e.clickSlot(ctx, page, req.TargetTime); err != nil {
			return forms.Outcome{}, err
		}
		if err := e.awaitForm(ctx, page); err != nil {
			return forms.Outcome{}, err
		}
	} else {
		url, err := e.venue.DatetimeURL(court, req.TargetDate, req.TargetTime)
		if err != nil {
			return forms.Outcome{}, err
		}
		if err := e.navigateToForm(ctx, page, url, logger); err != nil {
			return forms.Outcome{}, err
		}
	}

	return e.forms.FillAndSubmit(ctx, page, req.User)
}

func (e *Executor) timeoutResult(req booking.Request) booking.Result {
	seconds := int(e.attemptBudget.Seconds())
	return booking.FailureResult(req.User, req.RequestID,
		booking.WithMessage(fmt.Sprintf("Booking timed out after %d seconds", seconds)),
	)
}

func (e *Executor) failureFor(req booking.Request, err error, outcome forms.Outcome) booking.Result {
	opts := []booking.ResultOption{booking.WithMessage(failureMessage(err, outcome))}
	if len(outcome.Errors) > 0 {
		opts = append(opts, booking.WithErrors(outcome.Errors...))
	} else {
		opts = append(opts, booking.WithErrors(err.Error()))
	}
	return booking.FailureResult(req.User, req.RequestID, opts...)
}

func failureMessage(err error, outcome forms.Outcome) string {
	switch {
	case errors.Is(err, errors.ErrBotDetected):
		return "Venue flagged automated use - please book manually through the venue"
	case errors.Is(err, errors.ErrSlotUnavailable):
		return "Time slot is not available - someone else may have booked it"
	case outcome.Message != "":
		return outcome.Message
	default:
		return err.Error()
	}
}

// retryable separates transient failures from terminal ones
func retryable(err error) bool {
	switch {
	case errors.Is(err, errors.ErrBotDetected),
		errors.Is(err, errors.ErrSlotUnavailable),
		errors.Is(err, errors.ErrFormValidation),
		errors.Is(err, errors.ErrValidation):
		return false
	}
	return true
}

// cleanup parks the page back on the schedule URL for the next attempt.
// Best effort only.
func (e *Executor) cleanup(page browser.Page, court int, logger *zap.Logger) {
	url := e.venue.ScheduleURL(court)
	if url == "" {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := page.Navigate(cleanupCtx, url); err != nil {
		logger.Debug("post-attempt cleanup navigation failed", zap.Error(err))
	}
}
