package venue

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"courtbot-service/pkg/errors"
)

const probeTimeout = 5 * time.Second

// Probe checks that the venue answers over plain HTTP before the pool
// spends browser time on it. Used by the scheduler's health gate.
type Probe struct {
	client *resty.Client
	venue  *Venue
	logger *zap.Logger
}

// NewProbe builds a reachability probe for the venue
func NewProbe(v *Venue, logger *zap.Logger) *Probe {
	client := resty.New().
		SetTimeout(probeTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	return &Probe{
		client: client,
		venue:  v,
		logger: logger,
	}
}

// Reachable issues a GET against a court's schedule page. Redirects and
// any non-5xx answer count as reachable; the booking flow needs a real
// browser anyway, this only proves the site is up.
func (p *Probe) Reachable(ctx context.Context, court int) error {
	url := p.venue.ScheduleURL(court)
	if url == "" {
		return errors.ErrNotFound.WithDetails("court", court)
	}

	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return errors.ErrTimeout.WithDetails("court", court).Wrap(err)
	}

	if resp.StatusCode() >= 500 {
		p.logger.Warn("venue probe got server error",
			zap.Int("court", court),
			zap.Int("status", resp.StatusCode()),
		)
		return errors.ErrInternal.WithDetails("status", resp.StatusCode())
	}

	return nil
}

// ReachableAny reports success when at least one court's page answers
func (p *Probe) ReachableAny(ctx context.Context) error {
	var last error
	for _, court := range p.venue.Courts() {
		if err := p.Reachable(ctx, court); err != nil {
			last = err
			continue
		}
		return nil
	}
	if last == nil {
		last = errors.ErrNotFound.WithDetails("reason", "no courts configured")
	}
	return last
}
