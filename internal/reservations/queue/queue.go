package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courtbot-service/internal/reservations/domain"
	"courtbot-service/pkg/errors"
)

// Options configures a Queue.
type Options struct {
	Path         string
	Location     *time.Location
	WindowHours  int
	TestDelay    time.Duration // >0 schedules records now+delay instead of the 48h rule
	RetainFailed bool          // failed records return to SCHEDULED instead of being kept failed
	Logger       *zap.Logger
}

// Queue is the durable reservation store: a JSON array on disk, an
// in-memory index, and validated status transitions. Writes are
// serialized and land atomically (write-to-temp, rename).
type Queue struct {
	mu      sync.RWMutex
	path    string
	service *domain.Service
	records []domain.Record
	index   map[string]int

	location     *time.Location
	testDelay    time.Duration
	retainFailed bool
	logger       *zap.Logger
}

// Open loads the queue file, self-heals defective records, and persists
// any repairs. A missing file yields an empty queue.
func Open(opts Options) (*Queue, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}

	q := &Queue{
		path:         opts.Path,
		service:      domain.NewService(location, opts.WindowHours),
		index:        make(map[string]int),
		location:     location,
		testDelay:    opts.TestDelay,
		retainFailed: opts.RetainFailed,
		logger:       logger.Named("queue"),
	}

	repaired, err := q.load()
	if err != nil {
		return nil, err
	}
	if repaired > 0 {
		q.logger.Warn("normalised queued reservations missing identifiers or metadata",
			zap.Int("repaired", repaired))
		if err := q.save(); err != nil {
			return nil, err
		}
	}

	q.logger.Info("reservation queue initialized",
		zap.String("file", q.path),
		zap.Int("existing", len(q.records)),
		zap.Any("status_breakdown", q.statusCountsLocked()),
	)
	return q, nil
}

func (q *Queue) load() (repaired int, err error) {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		q.records = nil
		return 0, nil
	}
	if err != nil {
		// Reads are non-fatal: fall back to empty in-memory state.
		q.logger.Error("failed to read queue file, starting empty", zap.Error(err))
		q.records = nil
		return 0, nil
	}

	var records []domain.Record
	if err := json.Unmarshal(data, &records); err != nil {
		q.logger.Error("queue file is corrupt, starting empty", zap.Error(err))
		q.records = nil
		return 0, nil
	}

	now := time.Now().In(q.location)
	for i := range records {
		if q.heal(&records[i], now) {
			repaired++
		}
	}

	q.records = records
	q.reindex()
	return repaired, nil
}

// heal repairs a single loaded record in place. Returns true if modified.
func (q *Queue) heal(record *domain.Record, now time.Time) bool {
	modified := false

	if record.ID == "" {
		record.ID = uuid.New().String()
		modified = true
	}

	if normalized, changed := q.service.NormalizeTargetTime(record.TargetTime); changed {
		record.TargetTime = normalized
		modified = true
	}

	if !record.Status.Valid() {
		record.Status = domain.StatusPending
		modified = true
	}

	if target, err := q.service.TargetDateTime(*record); err == nil {
		if target.Before(now) && !record.Status.Terminal() {
			record.Status = domain.StatusExpired
			modified = true
		}
	}

	if record.ScheduledExecution.IsZero() && !record.Status.Terminal() {
		scheduled, err := q.service.ComputeScheduledExecution(*record, now, q.testDelay)
		if err != nil {
			q.logger.Error("failed to recompute scheduled_execution",
				zap.String("id", record.ID), zap.Error(err))
		} else {
			record.ScheduledExecution = scheduled
			record.Status = domain.StatusScheduled
			modified = true
		}
	}

	return modified
}

func (q *Queue) reindex() {
	q.index = make(map[string]int, len(q.records))
	for i := range q.records {
		q.index[q.records[i].ID] = i
	}
}

// save writes the whole queue atomically. Caller must hold the write lock.
func (q *Queue) save() error {
	data, err := json.MarshalIndent(q.records, "", "  ")
	if err != nil {
		return errors.ErrStore.Wrap(err)
	}
	if len(q.records) == 0 {
		data = []byte("[]")
	}

	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.ErrStore.Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, "queue-*.json")
	if err != nil {
		return errors.ErrStore.Wrap(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.ErrStore.Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.ErrStore.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.ErrStore.Wrap(err)
	}

	if err := os.Rename(tmpName, q.path); err != nil {
		os.Remove(tmpName)
		return errors.ErrStore.Wrap(err)
	}
	return nil
}

// Add validates and persists a new reservation, computing its execution
// time and enforcing the one-active-record-per-slot invariant.
func (q *Queue) Add(ctx context.Context, record domain.Record) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.service.Validate(record); err != nil {
		return "", err
	}
	if err := q.service.EnsureUniqueSlot(record, q.records); err != nil {
		q.logger.Warn("duplicate reservation rejected",
			zap.Int64("user_id", record.UserID),
			zap.String("target_date", record.TargetDate),
			zap.String("target_time", record.TargetTime),
		)
		return "", err
	}

	now := time.Now().In(q.location)
	scheduled, err := q.service.ComputeScheduledExecution(record, now, q.testDelay)
	if err != nil {
		return "", err
	}

	record.ID = uuid.New().String()
	record.Status = domain.StatusScheduled
	record.ScheduledExecution = scheduled
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.Metadata == nil {
		record.Metadata = map[string]interface{}{}
	}

	q.records = append(q.records, record)
	q.index[record.ID] = len(q.records) - 1

	if err := q.save(); err != nil {
		q.records = q.records[:len(q.records)-1]
		delete(q.index, record.ID)
		return "", err
	}

	q.logger.Info("reservation added",
		zap.String("id", record.ID),
		zap.Int64("user_id", record.UserID),
		zap.String("target_date", record.TargetDate),
		zap.String("target_time", record.TargetTime),
		zap.Time("scheduled_execution", scheduled),
		zap.Int("queue_size", len(q.records)),
	)
	return record.ID, nil
}

// Get returns a copy of the record with the given id
func (q *Queue) Get(ctx context.Context, id string) (domain.Record, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	i, ok := q.index[id]
	if !ok {
		return domain.Record{}, errors.ErrNotFound.WithDetails("id", id)
	}
	return q.records[i].Clone(), nil
}

// ListByUser returns all records belonging to a user
func (q *Queue) ListByUser(ctx context.Context, userID int64) []domain.Record {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []domain.Record
	for i := range q.records {
		if q.records[i].UserID == userID {
			out = append(out, q.records[i].Clone())
		}
	}
	return out
}

// ListPending returns records awaiting dispatch: pending, scheduled,
// and waitlist-promoted confirmed ones.
func (q *Queue) ListPending(ctx context.Context) []domain.Record {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []domain.Record
	for i := range q.records {
		switch q.records[i].Status {
		case domain.StatusPending, domain.StatusScheduled, domain.StatusConfirmed:
			out = append(out, q.records[i].Clone())
		}
	}
	return out
}

// ListBySlot returns every record targeting (date, time)
func (q *Queue) ListBySlot(ctx context.Context, targetDate, targetTime string) []domain.Record {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []domain.Record
	for i := range q.records {
		if q.records[i].TargetDate == targetDate && q.records[i].TargetTime == targetTime {
			out = append(out, q.records[i].Clone())
		}
	}
	return out
}

// WaitlistForSlot returns waitlisted records for a slot sorted by position
func (q *Queue) WaitlistForSlot(ctx context.Context, targetDate, targetTime string) []domain.Record {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []domain.Record
	for i := range q.records {
		r := &q.records[i]
		if r.Status == domain.StatusWaitlisted && r.TargetDate == targetDate && r.TargetTime == targetTime {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WaitlistPosition < out[j].WaitlistPosition
	})
	return out
}

// Update mutates selected outcome fields during a status change.
type Update func(*domain.Record)

func WithLastError(message string) Update {
	return func(r *domain.Record) { r.LastError = message }
}

func WithConfirmation(code, url string) Update {
	return func(r *domain.Record) {
		r.ConfirmationCode = code
		r.ConfirmationURL = url
	}
}

func WithCalendarLinks(links map[string]string) Update {
	return func(r *domain.Record) { r.CalendarLinks = links }
}

func WithAttemptCount(attempts int) Update {
	return func(r *domain.Record) { r.Attempts = attempts }
}

func IncrementAttempts() Update {
	return func(r *domain.Record) { r.Attempts++ }
}

func WithMetadata(extra map[string]interface{}) Update {
	return func(r *domain.Record) {
		if r.Metadata == nil {
			r.Metadata = map[string]interface{}{}
		}
		for k, v := range extra {
			r.Metadata[k] = v
		}
	}
}

func WithWaitlistPosition(position int) Update {
	return func(r *domain.Record) { r.WaitlistPosition = position }
}

// UpdateStatus transitions a record and persists the merge. Terminal
// records refuse further transitions.
func (q *Queue) UpdateStatus(ctx context.Context, id string, status domain.Status, updates ...Update) (domain.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok {
		return domain.Record{}, errors.ErrNotFound.WithDetails("id", id)
	}

	record := q.records[i].Clone()
	if err := q.service.CanTransition(record.Status, status); err != nil {
		return domain.Record{}, err
	}

	record.Status = status
	for _, update := range updates {
		update(&record)
	}

	if status == domain.StatusFailed && q.retainFailed {
		// Test-mode requeue: failed records go back to SCHEDULED after
		// the configured delay instead of staying dead.
		record.Status = domain.StatusScheduled
		record.ScheduledExecution = time.Now().In(q.location).Add(q.requeueDelay())
	}

	previous := q.records[i]
	q.records[i] = record
	if err := q.save(); err != nil {
		q.records[i] = previous
		return domain.Record{}, err
	}

	q.logger.Info("reservation status updated",
		zap.String("id", id),
		zap.String("from", string(previous.Status)),
		zap.String("to", string(record.Status)),
	)
	return record.Clone(), nil
}

func (q *Queue) requeueDelay() time.Duration {
	if q.testDelay > 0 {
		return q.testDelay
	}
	return time.Minute
}

// AddToWaitlist marks a record waitlisted at the given position
func (q *Queue) AddToWaitlist(ctx context.Context, id string, position int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok {
		return errors.ErrNotFound.WithDetails("id", id)
	}

	record := q.records[i].Clone()
	if err := q.service.MarkWaitlisted(&record, position); err != nil {
		return err
	}

	previous := q.records[i]
	q.records[i] = record
	if err := q.save(); err != nil {
		q.records[i] = previous
		return err
	}

	q.logger.Info("reservation waitlisted",
		zap.String("id", id),
		zap.Int("position", position),
	)
	return nil
}

// Cancel marks a record cancelled. When the cancelled record was
// CONFIRMED, it promotes the lowest-position waitlisted record for the
// same slot, shifting the remainder down. Returns the promoted record,
// if any.
func (q *Queue) Cancel(ctx context.Context, id string) (*domain.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok {
		return nil, errors.ErrNotFound.WithDetails("id", id)
	}

	cancelled := q.records[i].Clone()
	if err := q.service.CanTransition(cancelled.Status, domain.StatusCancelled); err != nil {
		return nil, err
	}
	wasConfirmed := cancelled.Status == domain.StatusConfirmed

	snapshot := make([]domain.Record, len(q.records))
	copy(snapshot, q.records)

	cancelled.Status = domain.StatusCancelled
	q.records[i] = cancelled

	var promoted *domain.Record
	if wasConfirmed {
		promoted = q.promoteWaitlistLocked(cancelled.TargetDate, cancelled.TargetTime)
	}

	if err := q.save(); err != nil {
		q.records = snapshot
		q.reindex()
		return nil, err
	}

	q.logger.Info("reservation cancelled",
		zap.String("id", id),
		zap.Bool("promoted_from_waitlist", promoted != nil),
	)
	return promoted, nil
}

// promoteWaitlistLocked lifts the head of the slot's waitlist to
// CONFIRMED and renumbers the rest. Caller holds the write lock.
func (q *Queue) promoteWaitlistLocked(targetDate, targetTime string) *domain.Record {
	var waitlisted []*domain.Record
	for i := range q.records {
		r := &q.records[i]
		if r.Status == domain.StatusWaitlisted && r.TargetDate == targetDate && r.TargetTime == targetTime {
			waitlisted = append(waitlisted, r)
		}
	}
	if len(waitlisted) == 0 {
		return nil
	}

	sort.SliceStable(waitlisted, func(i, j int) bool {
		return waitlisted[i].WaitlistPosition < waitlisted[j].WaitlistPosition
	})

	head := waitlisted[0]
	head.Status = domain.StatusConfirmed
	head.WaitlistPosition = 0

	for position, r := range waitlisted[1:] {
		r.WaitlistPosition = position + 1
	}

	promoted := head.Clone()
	return &promoted
}

// Remove deletes a record outright. Used for fatal failures when
// retention is off.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok {
		return errors.ErrNotFound.WithDetails("id", id)
	}

	snapshot := make([]domain.Record, len(q.records))
	copy(snapshot, q.records)

	q.records = append(q.records[:i], q.records[i+1:]...)
	q.reindex()

	if err := q.save(); err != nil {
		q.records = snapshot
		q.reindex()
		return err
	}
	return nil
}

// StatusCounts returns how many records sit in each status
func (q *Queue) StatusCounts() map[domain.Status]int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.statusCountsLocked()
}

func (q *Queue) statusCountsLocked() map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for i := range q.records {
		counts[q.records[i].Status]++
	}
	return counts
}

// Service exposes the domain rules bound to this queue's venue clock
func (q *Queue) Service() *domain.Service {
	return q.service
}
