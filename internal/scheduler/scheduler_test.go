package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	booking "courtbot-service/internal/booking/domain"
	"courtbot-service/internal/config"
	resdomain "courtbot-service/internal/reservations/domain"
	"courtbot-service/internal/reservations/queue"
	"courtbot-service/internal/users"
	"courtbot-service/internal/venue"
	"courtbot-service/pkg/errors"
)

// stubPage satisfies browser.Page for dispatch tests.
type stubPage struct{ court int }

func (p *stubPage) Court() int                                          { return p.court }
func (p *stubPage) CurrentURL(ctx context.Context) (string, error)      { return "", nil }
func (p *stubPage) Navigate(ctx context.Context, url string) error      { return nil }
func (p *stubPage) NavigateAsync(ctx context.Context, url string) error { return nil }
func (p *stubPage) Reload(ctx context.Context) error                    { return nil }
func (p *stubPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (p *stubPage) Click(ctx context.Context, selector string) error           { return nil }
func (p *stubPage) Focus(ctx context.Context, selector string) error           { return nil }
func (p *stubPage) SetValue(ctx context.Context, selector, value string) error { return nil }
func (p *stubPage) SendKeys(ctx context.Context, selector, text string) error  { return nil }
func (p *stubPage) Evaluate(ctx context.Context, expr string, out interface{}) error {
	return nil
}
func (p *stubPage) BodyText(ctx context.Context) (string, error) { return "", nil }

type fakePool struct {
	mu            sync.Mutex
	available     []int
	criticalTrail []bool
	refreshCalls  int
}

func (f *fakePool) GetPage(ctx context.Context, court int) (browser.Page, error) {
	return &stubPage{court: court}, nil
}

func (f *fakePool) RefreshPages(ctx context.Context) map[int]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	out := make(map[int]bool)
	for _, court := range f.available {
		out[court] = true
	}
	return out
}

func (f *fakePool) AvailableCourts() []int { return f.available }

func (f *fakePool) SetCriticalOperation(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.criticalTrail = append(f.criticalTrail, active)
}

func (f *fakePool) criticalCleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.criticalTrail) > 0 && !f.criticalTrail[len(f.criticalTrail)-1]
}

type fakeGate struct {
	err   error
	calls int
}

func (f *fakeGate) Gate(ctx context.Context, errorContext string) error {
	f.calls++
	return f.err
}

type fakeExecutor struct {
	mu      sync.Mutex
	delay   time.Duration
	results map[int]booking.Result // by court
	courts  []int
}

func (f *fakeExecutor) Execute(ctx context.Context, page browser.Page, req booking.Request, court int) booking.Result {
	f.mu.Lock()
	f.courts = append(f.courts, court)
	result, ok := f.results[court]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	if !ok {
		return booking.SuccessResult(req.User, req.RequestID, court, req.TargetTime,
			booking.WithConfirmation("OK"+req.RequestID[:4], ""))
	}
	result.RequestID = req.RequestID
	result.User = req.User
	return result
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []booking.Result
}

func (f *fakeRecorder) Record(ctx context.Context, result booking.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	waitlisted map[string]int
	delayed    []string
	promoted   []string
}

func (f *fakeNotifier) NotifyWaitlisted(ctx context.Context, record resdomain.Record, position int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitlisted == nil {
		f.waitlisted = make(map[string]int)
	}
	f.waitlisted[record.ID] = position
}

func (f *fakeNotifier) NotifyDelay(ctx context.Context, record resdomain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayed = append(f.delayed, record.ID)
}

func (f *fakeNotifier) NotifyPromotion(ctx context.Context, record resdomain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoted = append(f.promoted, record.ID)
}

type harness struct {
	scheduler *Scheduler
	queue     *queue.Queue
	users     *users.MemoryStore
	pool      *fakePool
	gate      *fakeGate
	executor  *fakeExecutor
	recorder  *fakeRecorder
	notifier  *fakeNotifier
	venue     *venue.Venue
}

func newHarness(t *testing.T, cfg config.SchedulerConfig) *harness {
	t.Helper()
	logger := zap.NewNop()

	v, err := venue.New(config.VenueConfig{
		Timezone:           "America/Guatemala",
		Courts:             []int{1, 2, 3},
		BookingWindowHours: 48,
		BaseURL:            "https://clublavilla.as.me",
	})
	require.NoError(t, err)

	q, err := queue.Open(queue.Options{
		Path:        filepath.Join(t.TempDir(), "queue.json"),
		Location:    v.Location(),
		WindowHours: 48,
		Logger:      logger,
	})
	require.NoError(t, err)

	h := &harness{
		queue:    q,
		users:    users.NewMemoryStore(),
		pool:     &fakePool{available: []int{1, 2, 3}},
		gate:     &fakeGate{},
		executor: &fakeExecutor{},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		venue:    v,
	}
	h.scheduler = New(Dependencies{
		Queue:    q,
		Users:    h.users,
		Pool:     h.pool,
		Gate:     h.gate,
		Executor: h.executor,
		Recorder: h.recorder,
		Notifier: h.notifier,
		Venue:    v,
		Metrics:  NewMetrics(nil),
	}, cfg, logger)
	return h
}

func (h *harness) addUser(t *testing.T, id int64, tier string) {
	t.Helper()
	require.NoError(t, h.users.Put(context.Background(), booking.User{
		ID: id, FirstName: "User", LastName: "Test",
		Email: "u@example.com", Phone: "+502", Tier: tier,
	}))
}

// addDueRecord inserts a record and rewinds its execution time so the
// next tick picks it up.
func (h *harness) addDueRecord(t *testing.T, userID int64, courts ...int) string {
	t.Helper()
	ctx := context.Background()
	target := time.Now().In(h.venue.Location()).Add(96 * time.Hour)
	id, err := h.queue.Add(ctx, resdomain.Record{
		UserID:           userID,
		TargetDate:       target.Format("2006-01-02"),
		TargetTime:       "08:00",
		CourtPreferences: courts,
	})
	require.NoError(t, err)

	// Jump past scheduled_execution (target − 48h − 30s) so the next
	// tick sees the record as due. The target (08:00 on the date of
	// now+96h) lies 80–104h ahead, so 60h clears every possible
	// scheduled_execution while staying short of the target itself.
	h.scheduler.clock = func() time.Time {
		return time.Now().Add(60 * time.Hour)
	}
	return id
}

func TestScheduler_DispatchesReadyBatch(t *testing.T) {
	h := newHarness(t, config.SchedulerConfig{DispatchTimeout: 5 * time.Second})
	ctx := context.Background()

	h.addUser(t, 1, "")
	id := h.addDueRecord(t, 1, 1, 2, 3)

	h.scheduler.Tick(ctx)

	require.Len(t, h.recorder.results, 1)
	result := h.recorder.results[0]
	assert.True(t, result.Success())
	assert.Equal(t, id, result.RequestID)
	assert.Equal(t, 1, h.gate.calls)
	assert.Equal(t, 1, h.pool.refreshCalls)
	assert.True(t, h.pool.criticalCleared())

	record, err := h.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusBookingInProgress, record.Status,
		"final status transition belongs to the outcome recorder")
	assert.Equal(t, 1, record.Attempts)
}

func TestScheduler_GateFailureDefersBatch(t *testing.T) {
	h := newHarness(t, config.SchedulerConfig{})
	ctx := context.Background()

	h.addUser(t, 1, "")
	id := h.addDueRecord(t, 1, 1)
	h.gate.err = errors.ErrPoolUnhealthy

	h.scheduler.Tick(ctx)

	assert.Empty(t, h.recorder.results)
	assert.Empty(t, h.executor.courts)
	assert.Equal(t, []string{id}, h.notifier.delayed)

	record, err := h.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusScheduled, record.Status, "deferred records stay scheduled")
}

func TestScheduler_HydrationFailureMarksFailed(t *testing.T) {
	h := newHarness(t, config.SchedulerConfig{})
	ctx := context.Background()

	// No user profile seeded.
	id := h.addDueRecord(t, 404, 1)

	h.scheduler.Tick(ctx)

	assert.Empty(t, h.executor.courts)
	record, err := h.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusFailed, record.Status)
	assert.Equal(t, "could not prepare request", record.LastError)
}

func TestScheduler_OverflowGoesToWaitlist(t *testing.T) {
	h := newHarness(t, config.SchedulerConfig{DispatchTimeout: 5 * time.Second})
	h.pool.available = []int{1, 2}
	ctx := context.Background()

	var ids []string
	for userID := int64(1); userID <= 3; userID++ {
		h.addUser(t, userID, "")
		ids = append(ids, h.addDueRecord(t, userID, 1, 2, 3))
	}

	h.scheduler.Tick(ctx)

	assert.Len(t, h.recorder.results, 2)
	require.Len(t, h.notifier.waitlisted, 1)
	assert.Equal(t, 1, h.notifier.waitlisted[ids[2]])

	record, err := h.queue.Get(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusWaitlisted, record.Status)
	assert.Equal(t, 1, record.WaitlistPosition)
}

func TestScheduler_DispatchTimeout(t *testing.T) {
	h := newHarness(t, config.SchedulerConfig{DispatchTimeout: 300 * time.Millisecond})
	ctx := context.Background()

	h.addUser(t, 1, "")
	h.addDueRecord(t, 1, 1)
	h.executor.delay = 2 * time.Second

	start := time.Now()
	h.scheduler.Tick(ctx)

	require.Len(t, h.recorder.results, 1)
	assert.Contains(t, h.recorder.results[0].Message, "Booking timed out after 0 seconds")
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
	assert.True(t, h.pool.criticalCleared(), "critical flag force-cleared after timeout")
}

func TestScheduler_CancellationPromotesWaitlist(t *testing.T) {
	h := newHarness(t, config.SchedulerConfig{})
	ctx := context.Background()

	var ids []string
	for userID := int64(1); userID <= 4; userID++ {
		h.addUser(t, userID, "")
		ids = append(ids, h.addDueRecord(t, userID, 1, 2, 3))
	}

	for _, id := range ids[:3] {
		_, err := h.queue.UpdateStatus(ctx, id, resdomain.StatusConfirmed)
		require.NoError(t, err)
	}
	require.NoError(t, h.queue.AddToWaitlist(ctx, ids[3], 1))

	require.NoError(t, h.scheduler.HandleCancellation(ctx, ids[0]))

	assert.Equal(t, []string{ids[3]}, h.notifier.promoted)
	record, err := h.queue.Get(ctx, ids[3])
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusConfirmed, record.Status)
}
