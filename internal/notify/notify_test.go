package notify

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	booking "courtbot-service/internal/booking/domain"
	resdomain "courtbot-service/internal/reservations/domain"
	"courtbot-service/internal/reservations/queue"
	"courtbot-service/pkg/errors"
)

type capturingPublisher struct {
	mu       sync.Mutex
	payloads []Payload
}

func (p *capturingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	return nil
}

func (p *capturingPublisher) byKind(kind Kind) []Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Payload
	for _, payload := range p.payloads {
		if payload.Kind == kind {
			out = append(out, payload)
		}
	}
	return out
}

func successResult() booking.Result {
	return booking.SuccessResult(
		booking.User{ID: 42, FirstName: "Ada", LastName: "Lovelace", Email: "a@x.com", Phone: "+502"},
		"res-1", 1, "08:00",
		booking.WithConfirmation("ABC123", "https://clublavilla.as.me/schedule/7d558012/confirmation/ABC123"),
		booking.WithResultMetadata(map[string]interface{}{
			"calendar_links": map[string]string{
				"google": "https://calendar.google.com/g",
				"ical":   "https://example.com/i.ics",
			},
		}),
	)
}

func TestSuccessPayload(t *testing.T) {
	payload := SuccessPayload(successResult())

	assert.Equal(t, KindBookingResult, payload.Kind)
	assert.Equal(t, int64(42), payload.UserID)
	assert.Contains(t, payload.Message, "Cancha 1")
	assert.Contains(t, payload.Message, "ABC123")

	require.Len(t, payload.Buttons, 3)
	assert.Equal(t, "https://calendar.google.com/g", payload.Buttons[0].URL)
	assert.Equal(t, "https://example.com/i.ics", payload.Buttons[1].URL)
	assert.Equal(t, "cancel_reservation:res-1", payload.Buttons[2].CallbackData)
}

func TestFailurePayload(t *testing.T) {
	result := booking.FailureResult(
		booking.User{ID: 42},
		"res-1",
		booking.WithMessage("Time slot is not available"),
	)

	payload := FailurePayload(result)
	assert.Contains(t, payload.Message, "Time slot is not available")
	assert.Empty(t, payload.Buttons)
}

func TestNotifier_Send(t *testing.T) {
	publisher := &capturingPublisher{}
	notifier := NewNotifier(publisher, "courtbot.notifications", zap.NewNop())

	notifier.Send(context.Background(), WaitlistPayload(resdomain.Record{
		UserID:     7,
		TargetDate: "2025-07-14",
		TargetTime: "08:00",
	}, 2))

	payloads := publisher.byKind(KindWaitlist)
	require.Len(t, payloads, 1)
	assert.Contains(t, payloads[0].Message, "#2")
}

func openQueue(t *testing.T, retainFailed bool) *queue.Queue {
	t.Helper()
	loc, err := time.LoadLocation("America/Guatemala")
	require.NoError(t, err)
	q, err := queue.Open(queue.Options{
		Path:         filepath.Join(t.TempDir(), "queue.json"),
		Location:     loc,
		WindowHours:  48,
		RetainFailed: retainFailed,
	})
	require.NoError(t, err)
	return q
}

func addRecord(t *testing.T, q *queue.Queue) string {
	t.Helper()
	target := time.Now().Add(96 * time.Hour)
	id, err := q.Add(context.Background(), resdomain.Record{
		UserID:           42,
		FirstName:        "Ada",
		TargetDate:       target.Format("2006-01-02"),
		TargetTime:       "08:00",
		CourtPreferences: []int{1},
	})
	require.NoError(t, err)
	return id
}

func TestRecorder_Success(t *testing.T) {
	q := openQueue(t, false)
	publisher := &capturingPublisher{}
	recorder := NewRecorder(q, NewNotifier(publisher, "subj", zap.NewNop()), false, zap.NewNop())

	id := addRecord(t, q)
	ctx := context.Background()
	_, err := q.UpdateStatus(ctx, id, resdomain.StatusBookingInProgress)
	require.NoError(t, err)

	result := successResult()
	result.RequestID = id
	require.NoError(t, recorder.Record(ctx, result))

	stored, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusSuccess, stored.Status)
	assert.Equal(t, "ABC123", stored.ConfirmationCode)
	assert.Equal(t, "https://calendar.google.com/g", stored.CalendarLinks["google"])

	require.Len(t, publisher.byKind(KindBookingResult), 1)
}

func TestRecorder_FailureRemovesWithoutRetention(t *testing.T) {
	q := openQueue(t, false)
	publisher := &capturingPublisher{}
	recorder := NewRecorder(q, NewNotifier(publisher, "subj", zap.NewNop()), false, zap.NewNop())

	id := addRecord(t, q)
	ctx := context.Background()
	_, err := q.UpdateStatus(ctx, id, resdomain.StatusBookingInProgress)
	require.NoError(t, err)

	result := booking.FailureResult(booking.User{ID: 42}, id,
		booking.WithMessage("slot not available"))
	require.NoError(t, recorder.Record(ctx, result))

	_, err = q.Get(ctx, id)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	require.Len(t, publisher.byKind(KindBookingResult), 1)
}

func TestRecorder_ImmediateResultOnlyNotifies(t *testing.T) {
	q := openQueue(t, false)
	publisher := &capturingPublisher{}
	recorder := NewRecorder(q, NewNotifier(publisher, "subj", zap.NewNop()), false, zap.NewNop())

	result := successResult()
	result.RequestID = ""
	require.NoError(t, recorder.Record(context.Background(), result))
	require.Len(t, publisher.byKind(KindBookingResult), 1)
}
