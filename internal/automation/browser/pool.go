package browser

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"courtbot-service/internal/config"
	"courtbot-service/internal/venue"
	"courtbot-service/pkg/errors"
)

// EmergencyCourt is the sentinel id the recovery orchestrator registers
// its standalone fallback browser under.
const EmergencyCourt = 99

const (
	sessionProbeTimeout = 3 * time.Second
	navigateTimeout     = 30 * time.Second
)

type session struct {
	court     int
	tabCtx    context.Context
	cancel    context.CancelFunc
	createdAt time.Time
	emergency bool
}

// Pool owns one pre-warmed browser tab per court. All sessions share a
// single browser process; the emergency fallback gets its own.
type Pool struct {
	mu sync.RWMutex

	venue   *venue.Venue
	logger  *zap.Logger
	cfg     config.PoolConfig
	started bool

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	emergencyAllocCtx    context.Context
	emergencyAllocCancel context.CancelFunc

	sessions map[int]*session
	health   map[int]HealthStatus

	critical atomic.Bool
}

// NewPool builds an unstarted pool for the venue's courts
func NewPool(v *venue.Venue, cfg config.PoolConfig, logger *zap.Logger) *Pool {
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = 60 * time.Minute
	}
	return &Pool{
		venue:    v,
		logger:   logger.Named("pool"),
		cfg:      cfg,
		sessions: make(map[int]*session),
		health:   make(map[int]HealthStatus),
	}
}

// Start launches the browser engine and warms one tab per court
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "es-GT"),
		chromedp.WindowSize(1920, 1080),
	)
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	p.browserCtx, p.browserStop = chromedp.NewContext(p.allocCtx)

	// Touching the browser context spawns the process.
	if err := chromedp.Run(p.browserCtx); err != nil {
		p.teardownLocked()
		return errors.ErrInternal.WithMessage("browser engine failed to start").Wrap(err)
	}

	for _, court := range p.venue.Courts() {
		if err := p.createSessionLocked(ctx, court); err != nil {
			p.logger.Error("failed to warm court session",
				zap.Int("court", court), zap.Error(err))
			p.health[court] = HealthFailed
			continue
		}
	}

	p.started = true
	p.logger.Info("browser pool started",
		zap.Ints("courts", p.venue.Courts()),
		zap.Int("sessions", len(p.sessions)),
	)
	return nil
}

// Stop tears down every session and the browser engine
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
	p.started = false
	p.logger.Info("browser pool stopped")
}

func (p *Pool) teardownLocked() {
	for court, s := range p.sessions {
		s.cancel()
		delete(p.sessions, court)
	}
	if p.browserStop != nil {
		p.browserStop()
		p.browserStop = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	if p.emergencyAllocCancel != nil {
		p.emergencyAllocCancel()
		p.emergencyAllocCancel = nil
	}
	p.health = make(map[int]HealthStatus)
}

// createSessionLocked opens a fresh tab for the court and parks it on
// the schedule page. Caller holds the write lock.
func (p *Pool) createSessionLocked(ctx context.Context, court int) error {
	url := p.venue.ScheduleURL(court)
	if url == "" {
		return errors.ErrNotFound.WithDetails("court", court)
	}

	tabCtx, cancel := chromedp.NewContext(p.browserCtx)

	navCtx, navCancel := context.WithTimeout(tabCtx, navigateTimeout)
	err := chromedp.Run(navCtx,
		emulation.SetTimezoneOverride(p.venue.Location().String()),
		chromedp.Navigate(url),
	)
	navCancel()
	if err != nil {
		cancel()
		return errors.ErrInternal.WithDetails("court", court).Wrap(err)
	}

	if old, ok := p.sessions[court]; ok {
		old.cancel()
	}
	p.sessions[court] = &session{
		court:     court,
		tabCtx:    tabCtx,
		cancel:    cancel,
		createdAt: time.Now(),
	}
	p.health[court] = HealthHealthy
	return nil
}

// GetPage hands out the court's session, creating or silently
// recreating it when missing or dead.
func (p *Pool) GetPage(ctx context.Context, court int) (Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil, errors.ErrInternal.WithMessage("browser pool is not running")
	}

	s, ok := p.sessions[court]
	if ok && p.sessionAlive(s) {
		return &tabPage{court: court, tabCtx: s.tabCtx}, nil
	}

	if ok {
		p.logger.Warn("court session dead, recreating", zap.Int("court", court))
	}
	if err := p.createSessionLocked(ctx, court); err != nil {
		p.health[court] = HealthFailed
		return nil, err
	}
	return &tabPage{court: court, tabCtx: p.sessions[court].tabCtx}, nil
}

// sessionAlive probes the tab with a cheap evaluation
func (p *Pool) sessionAlive(s *session) bool {
	probeCtx, cancel := context.WithTimeout(s.tabCtx, sessionProbeTimeout)
	defer cancel()

	var two int
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("1+1", &two)); err != nil {
		return false
	}
	return two == 2
}

// RefreshPages reloads every court's schedule page. Called before any
// dispatch so attempts start from fresh DOM. Returns per-court success.
func (p *Pool) RefreshPages(ctx context.Context) map[int]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make(map[int]bool, len(p.sessions))
	for court, s := range p.sessions {
		if s.emergency {
			continue
		}
		url := p.venue.ScheduleURL(court)
		navCtx, cancel := context.WithTimeout(s.tabCtx, navigateTimeout)
		err := chromedp.Run(navCtx, chromedp.Navigate(url))
		cancel()
		if err != nil {
			p.logger.Warn("failed to refresh court page",
				zap.Int("court", court), zap.Error(err))
			p.health[court] = HealthCritical
			results[court] = false
			continue
		}
		results[court] = true
		p.health[court] = HealthHealthy
	}
	return results
}

// AvailableCourts lists courts whose last health check allows attempts
func (p *Pool) AvailableCourts() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []int
	for court := range p.sessions {
		if p.health[court].Usable() {
			out = append(out, court)
		}
	}
	sort.Ints(out)
	return out
}

// SetCriticalOperation flags an in-flight booking attempt. While set,
// background recycling and probes stay away from the sessions.
func (p *Pool) SetCriticalOperation(active bool) {
	was := p.critical.Swap(active)
	if was != active {
		p.logger.Debug("critical operation flag changed", zap.Bool("active", active))
	}
}

// CriticalOperation reports whether an attempt is in flight
func (p *Pool) CriticalOperation() bool {
	return p.critical.Load()
}

// HealthCheck probes every session and grades the pool. While the
// critical flag is set it reports the last recorded grades instead.
func (p *Pool) HealthCheck(ctx context.Context) HealthReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	courts := make(map[int]CourtHealth, len(p.venue.Courts()))
	if p.CriticalOperation() {
		for _, court := range p.venue.Courts() {
			status := p.health[court]
			if status == "" {
				status = HealthFailed
			}
			courts[court] = CourtHealth{Court: court, Status: status}
		}
		return HealthReport{Overall: overallFrom(courts), Courts: courts}
	}

	for _, court := range p.venue.Courts() {
		detail := CourtHealth{Court: court, Status: HealthFailed}
		s, ok := p.sessions[court]
		if !ok {
			detail.Error = "no session"
			courts[court] = detail
			p.health[court] = HealthFailed
			continue
		}

		detail.AgeSeconds = time.Since(s.createdAt).Seconds()
		if !p.sessionAlive(s) {
			detail.Error = "session not responding"
			courts[court] = detail
			p.health[court] = HealthFailed
			continue
		}

		var url string
		urlCtx, cancel := context.WithTimeout(s.tabCtx, sessionProbeTimeout)
		if err := chromedp.Run(urlCtx, chromedp.Location(&url)); err == nil {
			detail.URL = url
		}
		cancel()

		if time.Since(s.createdAt) > p.cfg.SessionMaxAge {
			detail.Status = HealthDegraded
		} else {
			detail.Status = HealthHealthy
		}
		courts[court] = detail
		p.health[court] = detail.Status
	}

	return HealthReport{Overall: overallFrom(courts), Courts: courts}
}

// RecycleStale recreates sessions past their age threshold. Skipped
// entirely while a booking attempt holds the critical flag.
func (p *Pool) RecycleStale(ctx context.Context) {
	if p.CriticalOperation() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for court, s := range p.sessions {
		if s.emergency || time.Since(s.createdAt) <= p.cfg.SessionMaxAge {
			continue
		}
		p.logger.Info("recycling stale court session",
			zap.Int("court", court),
			zap.Duration("age", time.Since(s.createdAt)),
		)
		if err := p.createSessionLocked(ctx, court); err != nil {
			p.logger.Error("failed to recycle session",
				zap.Int("court", court), zap.Error(err))
			p.health[court] = HealthCritical
		}
	}
}

// RecreateCourt closes and rebuilds a single court's session
func (p *Pool) RecreateCourt(ctx context.Context, court int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[court]; ok {
		s.cancel()
		delete(p.sessions, court)
	}
	if err := p.createSessionLocked(ctx, court); err != nil {
		p.health[court] = HealthFailed
		return err
	}
	return nil
}

// Restart performs a full stop/start cycle with the same court set
func (p *Pool) Restart(ctx context.Context) error {
	p.Stop()
	time.Sleep(2 * time.Second)
	return p.Start(ctx)
}

// StartEmergencyBrowser launches a standalone browser outside the
// managed engine and registers its tab under the sentinel court id.
func (p *Pool) StartEmergencyBrowser(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.emergencyAllocCancel != nil {
		p.emergencyAllocCancel()
		p.emergencyAllocCancel = nil
	}
	if s, ok := p.sessions[EmergencyCourt]; ok {
		s.cancel()
		delete(p.sessions, EmergencyCourt)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	p.emergencyAllocCtx, p.emergencyAllocCancel = chromedp.NewExecAllocator(context.Background(), opts...)

	tabCtx, cancel := chromedp.NewContext(p.emergencyAllocCtx)
	navCtx, navCancel := context.WithTimeout(tabCtx, navigateTimeout)
	err := chromedp.Run(navCtx,
		emulation.SetTimezoneOverride(p.venue.Location().String()),
		chromedp.Navigate(p.venue.ScheduleURL(p.venue.Courts()[0])),
	)
	navCancel()
	if err != nil {
		cancel()
		p.emergencyAllocCancel()
		p.emergencyAllocCancel = nil
		return errors.ErrInternal.WithMessage("emergency browser failed to start").Wrap(err)
	}

	p.sessions[EmergencyCourt] = &session{
		court:     EmergencyCourt,
		tabCtx:    tabCtx,
		cancel:    cancel,
		createdAt: time.Now(),
		emergency: true,
	}
	p.health[EmergencyCourt] = HealthDegraded
	p.logger.Warn("emergency fallback browser registered",
		zap.Int("court", EmergencyCourt))
	return nil
}

// Courts returns the managed court set
func (p *Pool) Courts() []int {
	return p.venue.Courts()
}
