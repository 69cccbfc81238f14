package notify

import (
	"context"

	"go.uber.org/zap"

	booking "courtbot-service/internal/booking/domain"
	resdomain "courtbot-service/internal/reservations/domain"
	"courtbot-service/internal/reservations/queue"
	"courtbot-service/pkg/errors"
)

// Recorder turns booking results into queue updates plus exactly one
// final user notification each.
type Recorder struct {
	queue        *queue.Queue
	notifier     *Notifier
	retainFailed bool
	logger       *zap.Logger
}

// NewRecorder builds an outcome recorder over the queue and notifier
func NewRecorder(q *queue.Queue, notifier *Notifier, retainFailed bool, logger *zap.Logger) *Recorder {
	return &Recorder{
		queue:        q,
		notifier:     notifier,
		retainFailed: retainFailed,
		logger:       logger.Named("outcome"),
	}
}

// Record persists the result and notifies the user. Records without a
// request id (immediate bookings) only notify.
func (r *Recorder) Record(ctx context.Context, result booking.Result) error {
	var persistErr error
	if result.RequestID != "" {
		if result.Success() {
			persistErr = r.persistSuccess(ctx, result)
		} else {
			persistErr = r.persistFailure(ctx, result)
		}
	}

	r.notifier.NotifyResult(ctx, result)
	return persistErr
}

func (r *Recorder) persistSuccess(ctx context.Context, result booking.Result) error {
	updates := []queue.Update{
		queue.WithConfirmation(result.ConfirmationCode, result.ConfirmationURL),
		queue.WithMetadata(map[string]interface{}{
			"court_reserved": result.CourtReserved,
			"time_reserved":  result.TimeReserved,
			"result_message": result.Message,
		}),
	}
	if links, ok := result.Metadata["calendar_links"].(map[string]string); ok {
		updates = append(updates, queue.WithCalendarLinks(links))
	}

	_, err := r.queue.UpdateStatus(ctx, result.RequestID, resdomain.StatusSuccess, updates...)
	if err != nil {
		r.logger.Error("failed to persist booking success",
			zap.String("request_id", result.RequestID), zap.Error(err))
	}
	return err
}

func (r *Recorder) persistFailure(ctx context.Context, result booking.Result) error {
	updates := []queue.Update{
		queue.WithLastError(result.Message),
		queue.WithMetadata(map[string]interface{}{
			"errors": result.Errors,
		}),
	}

	_, err := r.queue.UpdateStatus(ctx, result.RequestID, resdomain.StatusFailed, updates...)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		r.logger.Error("failed to persist booking failure",
			zap.String("request_id", result.RequestID), zap.Error(err))
		return err
	}

	if !r.retainFailed {
		if err := r.queue.Remove(ctx, result.RequestID); err != nil {
			r.logger.Warn("failed to drop failed reservation",
				zap.String("request_id", result.RequestID), zap.Error(err))
		}
	}
	return nil
}
