package executor

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	"courtbot-service/internal/automation/forms"
	"courtbot-service/internal/venue"
	"courtbot-service/pkg/errors"
)

const (
	commitFormWait  = 5 * time.Second
	domSettleWait   = 2 * time.Second
	networkIdleWait = 15 * time.Second
)

// navigateToForm reaches the booking form through progressively heavier
// strategies: fire-and-continue navigation first, a full load second, a
// long settle wait last. An explicit unavailable marker short-circuits
// to a clean slot-unavailable failure.
func (e *Executor) navigateToForm(ctx context.Context, page browser.Page, url string, logger *zap.Logger) error {
	// Strategy 1: commit-only navigation, then watch for the form.
	if err := page.NavigateAsync(ctx, url); err != nil {
		logger.Debug("async navigation failed, trying full load", zap.Error(err))
		if err := page.Navigate(ctx, url); err != nil {
			return errors.ErrInternal.WithMessage("navigation failed").Wrap(err)
		}
	}
	if err := e.waitForForm(ctx, page, commitFormWait); err == nil {
		return nil
	}
	if unavailable, _ := e.slotUnavailable(ctx, page); unavailable {
		return errors.ErrSlotUnavailable
	}

	// Strategy 2: force a full load and give dynamic content a moment.
	logger.Debug("form absent after commit navigation, falling back to full load")
	if err := page.Navigate(ctx, url); err != nil {
		return errors.ErrInternal.WithMessage("navigation failed").Wrap(err)
	}
	select {
	case <-time.After(domSettleWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := e.waitForForm(ctx, page, domSettleWait); err == nil {
		return nil
	}
	if unavailable, _ := e.slotUnavailable(ctx, page); unavailable {
		return errors.ErrSlotUnavailable
	}

	// Strategy 3: wait out the network.
	logger.Debug("form still absent, waiting for network idle")
	if err := e.waitForForm(ctx, page, networkIdleWait); err == nil {
		return nil
	}
	if unavailable, _ := e.slotUnavailable(ctx, page); unavailable {
		return errors.ErrSlotUnavailable
	}

	// The page settled without ever producing a form: the slot is gone.
	if quiescent, _ := e.domQuiescent(ctx, page); quiescent {
		return errors.ErrSlotUnavailable
	}
	return errors.ErrTimeout.WithMessage("booking form never appeared")
}

// awaitForm waits for the known form fields after a slot click
func (e *Executor) awaitForm(ctx context.Context, page browser.Page) error {
	if err := e.waitForForm(ctx, page, commitFormWait+domSettleWait); err == nil {
		return nil
	}
	if quiescent, _ := e.domQuiescent(ctx, page); quiescent {
		// DOM is done and no form showed up: someone else took the slot.
		return errors.ErrSlotUnavailable
	}
	return errors.ErrTimeout.WithMessage("booking form never appeared")
}

func (e *Executor) waitForForm(ctx context.Context, page browser.Page, timeout time.Duration) error {
	return page.WaitVisible(ctx, forms.FirstNameSelector, timeout)
}

// slotUnavailable checks for the venue's explicit no-slots marker
func (e *Executor) slotUnavailable(ctx context.Context, page browser.Page) (bool, error) {
	body, err := page.BodyText(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(body), venue.UnavailableMarker), nil
}

// domQuiescent reports whether the document finished loading
func (e *Executor) domQuiescent(ctx context.Context, page browser.Page) (bool, error) {
	var state string
	if err := page.Evaluate(ctx, "document.readyState", &state); err != nil {
		return false, err
	}
	return state == "complete", nil
}

// slotVisible probes for a time button matching the target time, both
// the strict class and looser text-matched variants.
func (e *Executor) slotVisible(ctx context.Context, page browser.Page, targetTime string) (bool, error) {
	expr := slotLookupJS(targetTime) + `.found`
	var found bool
	if err := page.Evaluate(ctx, expr, &found); err != nil {
		return false, err
	}
	return found, nil
}

// clickSlot clicks the matched time button's center
func (e *Executor) clickSlot(ctx context.Context, page browser.Page, targetTime string) error {
	expr := `(() => {
		const result = ` + slotLookupJS(targetTime) + `;
		if (!result.found) return false;
		const rect = result.button.getBoundingClientRect();
		const opts = {
			bubbles: true,
			clientX: rect.left + rect.width / 2,
			clientY: rect.top + rect.height / 2,
		};
		result.button.dispatchEvent(new MouseEvent('mousemove', opts));
		result.button.dispatchEvent(new MouseEvent('mousedown', opts));
		result.button.dispatchEvent(new MouseEvent('mouseup', opts));
		result.button.click();
		return true;
	})()`

	var clicked bool
	if err := page.Evaluate(ctx, expr, &clicked); err != nil {
		return errors.ErrInternal.WithMessage("slot click failed").Wrap(err)
	}
	if !clicked {
		return errors.ErrNotFound.WithMessage("time slot button not found")
	}
	return nil
}

// slotLookupJS builds the lookup for a time button: strict
// time-selection class first, any button carrying the time text second.
func slotLookupJS(targetTime string) string {
	quoted := "'" + strings.ReplaceAll(targetTime, "'", "\\'") + "'"
	return `(() => {
		const frames = Array.from(document.querySelectorAll('iframe'));
		const doc = frames.length ? (frames[0].contentDocument || document) : document;
		const strict = Array.from(doc.querySelectorAll('` + venue.TimeButtonSelector + `'))
			.find(btn => btn.textContent.includes(` + quoted + `));
		if (strict) return { found: true, button: strict };
		const loose = Array.from(doc.querySelectorAll('button'))
			.find(btn => btn.textContent.trim() === ` + quoted + ` && btn.offsetParent !== null);
		if (loose) return { found: true, button: loose };
		return { found: false, button: null };
	})()`
}
