package availability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	"courtbot-service/internal/venue"
	"courtbot-service/pkg/errors"
)

const (
	pageReadyTimeout = 10 * time.Second
	resultTTL        = 30 * time.Second
	cacheSweep       = 5 * time.Minute
)

// PagePool is the slice of the browser pool the checker needs.
type PagePool interface {
	GetPage(ctx context.Context, court int) (browser.Page, error)
}

// Checker extracts per-court, per-day available time slots from the
// venue's schedule pages using the pool's pre-warmed tabs.
type Checker struct {
	pool   PagePool
	venue  *venue.Venue
	logger *zap.Logger
	caches *cache.Cache
}

// NewChecker builds an availability checker over the pool
func NewChecker(pool PagePool, v *venue.Venue, logger *zap.Logger) *Checker {
	return &Checker{
		pool:   pool,
		venue:  v,
		logger: logger.Named("availability"),
		caches: cache.New(resultTTL, cacheSweep),
	}
}

// CheckAllCourts fans out across every court in parallel and returns
// {court → {ISO date → [HH:MM]}}. A court whose page cannot be readied
// in time contributes an empty map instead of failing the call.
func (c *Checker) CheckAllCourts(ctx context.Context) map[int]map[string][]string {
	if data, found := c.caches.Get("all"); found {
		return data.(map[int]map[string][]string)
	}

	courts := c.venue.Courts()
	results := make(map[int]map[string][]string, len(courts))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, court := range courts {
		wg.Add(1)
		go func(court int) {
			defer wg.Done()

			courtCtx, cancel := context.WithTimeout(ctx, pageReadyTimeout)
			defer cancel()

			slots, err := c.checkCourt(courtCtx, court)
			if err != nil {
				c.logger.Warn("availability check failed for court",
					zap.Int("court", court), zap.Error(err))
				slots = map[string][]string{}
			}

			mu.Lock()
			results[court] = slots
			mu.Unlock()
		}(court)
	}
	wg.Wait()

	c.caches.Set("all", results, cache.DefaultExpiration)
	return results
}

// CheckCourt reads one court's schedule page
func (c *Checker) CheckCourt(ctx context.Context, court int) (map[string][]string, error) {
	courtCtx, cancel := context.WithTimeout(ctx, pageReadyTimeout)
	defer cancel()
	return c.checkCourt(courtCtx, court)
}

func (c *Checker) checkCourt(ctx context.Context, court int) (map[string][]string, error) {
	page, err := c.pool.GetPage(ctx, court)
	if err != nil {
		return nil, err
	}

	if err := c.ensureScheduleReady(ctx, page, court); err != nil {
		return nil, err
	}

	sections, err := c.extractSections(ctx, page)
	if err != nil {
		return nil, err
	}

	now := time.Now().In(c.venue.Location())

	var grouped map[string][]string
	if len(sections) > 0 {
		grouped = GroupSections(sections, now)
	} else {
		// No day headers at all: grab every visible time and pin it to
		// today rather than coming back empty-handed.
		times, err := c.extractAllTimes(ctx, page)
		if err != nil {
			return nil, err
		}
		grouped = FallbackToday(times, now)
	}

	grouped = ApplyFeasibility(grouped, now, c.venue.LastBookableHour(), c.venue.WindowHours())

	return grouped, nil
}

// ensureScheduleReady navigates (or refreshes) and waits for the page to
// show either time buttons or the explicit unavailable marker.
func (c *Checker) ensureScheduleReady(ctx context.Context, page browser.Page, court int) error {
	target := c.venue.ScheduleURL(court)
	current, err := page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if current == target {
		if err := page.Reload(ctx); err != nil {
			return err
		}
	} else {
		if err := page.Navigate(ctx, target); err != nil {
			return err
		}
	}

	readyExpr := `(() => {
		const frames = Array.from(document.querySelectorAll('iframe'));
		const doc = frames.length ? (frames[0].contentDocument || document) : document;
		if (doc.querySelectorAll('` + venue.TimeButtonSelector + `').length > 0) return true;
		return (doc.body.innerText || '').toLowerCase().includes('` + venue.UnavailableMarker + `');
	})()`

	deadline := time.Now().Add(pageReadyTimeout)
	for time.Now().Before(deadline) {
		var ready bool
		if err := page.Evaluate(ctx, readyExpr, &ready); err == nil && ready {
			return nil
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.ErrTimeout.WithMessage("schedule page never became ready")
}

// extractSections scrapes day headers with their time buttons
func (c *Checker) extractSections(ctx context.Context, page browser.Page) ([]DaySection, error) {
	expr := `(() => {
		const frames = Array.from(document.querySelectorAll('iframe'));
		const doc = frames.length ? (frames[0].contentDocument || document) : document;
		const sections = [];
		doc.querySelectorAll('[class*="day"], h2, h3').forEach(header => {
			const label = header.textContent.trim();
			if (!label) return;
			const times = [];
			let node = header.nextElementSibling;
			while (node && !node.matches('[class*="day"], h2, h3')) {
				node.querySelectorAll('` + venue.TimeButtonSelector + `').forEach(btn => {
					const text = btn.textContent.trim();
					if (text) times.push(text);
				});
				node = node.nextElementSibling;
			}
			if (times.length) sections.push({ label, times });
		});
		return sections;
	})()`

	var raw []struct {
		Label string   `json:"label"`
		Times []string `json:"times"`
	}
	if err := page.Evaluate(ctx, expr, &raw); err != nil {
		return nil, err
	}

	sections := make([]DaySection, 0, len(raw))
	for _, s := range raw {
		sections = append(sections, DaySection{Label: s.Label, Times: normalizeTimes(s.Times)})
	}
	return sections, nil
}

// extractAllTimes scrapes every visible time button regardless of day
func (c *Checker) extractAllTimes(ctx context.Context, page browser.Page) ([]string, error) {
	expr := `(() => {
		const frames = Array.from(document.querySelectorAll('iframe'));
		const doc = frames.length ? (frames[0].contentDocument || document) : document;
		return Array.from(doc.querySelectorAll('` + venue.TimeButtonSelector + `'))
			.map(btn => btn.textContent.trim())
			.filter(text => text);
	})()`

	var times []string
	if err := page.Evaluate(ctx, expr, &times); err != nil {
		return nil, err
	}
	return normalizeTimes(times), nil
}

// normalizeTimes pads bare "8:00" style values to HH:MM
func normalizeTimes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if len(t) == 4 && t[1] == ':' {
			if _, err := strconv.Atoi(t[:1]); err == nil {
				t = "0" + t
			}
		}
		out = append(out, t)
	}
	return out
}
