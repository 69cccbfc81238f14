package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	resdomain "courtbot-service/internal/reservations/domain"
	booking "courtbot-service/internal/booking/domain"
)

const menuResendDelay = 6 * time.Second

// Publisher carries payloads to the chat layer's transport.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Notifier serializes payloads onto the broker. Sends are fire and
// forget: a failed publish is logged, never surfaced to the booking
// flow.
type Notifier struct {
	publisher Publisher
	subject   string
	logger    *zap.Logger
}

// NewNotifier builds a notifier publishing on the given subject
func NewNotifier(publisher Publisher, subject string, logger *zap.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		subject:   subject,
		logger:    logger.Named("notify"),
	}
}

// Send publishes one payload
func (n *Notifier) Send(ctx context.Context, payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to encode notification", zap.Error(err))
		return
	}
	if err := n.publisher.Publish(ctx, n.subject, data); err != nil {
		n.logger.Error("failed to publish notification",
			zap.Int64("user_id", payload.UserID),
			zap.String("kind", string(payload.Kind)),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("notification published",
		zap.Int64("user_id", payload.UserID),
		zap.String("kind", string(payload.Kind)),
	)
}

// NotifyResult sends the final outcome notification, then asks the chat
// layer to resend its main menu a few seconds later.
func (n *Notifier) NotifyResult(ctx context.Context, result booking.Result) {
	if result.Success() {
		n.Send(ctx, SuccessPayload(result))
	} else {
		n.Send(ctx, FailurePayload(result))
	}

	go func() {
		select {
		case <-time.After(menuResendDelay):
		case <-ctx.Done():
			return
		}
		menuCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Send(menuCtx, MainMenuPayload(result.User.ID))
	}()
}

// NotifyWaitlisted tells a user their waitlist position
func (n *Notifier) NotifyWaitlisted(ctx context.Context, record resdomain.Record, position int) {
	n.Send(ctx, WaitlistPayload(record, position))
}

// NotifyPromotion tells a user they moved off the waitlist
func (n *Notifier) NotifyPromotion(ctx context.Context, record resdomain.Record) {
	n.Send(ctx, PromotionPayload(record))
}

// NotifyDelay sends the degraded-system advisory
func (n *Notifier) NotifyDelay(ctx context.Context, record resdomain.Record) {
	n.Send(ctx, DelayPayload(record))
}

// NotifyQueued acknowledges a new queue entry
func (n *Notifier) NotifyQueued(ctx context.Context, record resdomain.Record) {
	n.Send(ctx, QueueAckPayload(record))
}
