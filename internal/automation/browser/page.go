package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"courtbot-service/pkg/errors"
)

// Page is the surface the executor, form service, and availability
// checker drive. Implementations wrap one browser tab; fakes implement
// it in tests.
type Page interface {
	// Court returns the court this tab is bound to.
	Court() int

	// CurrentURL reports the tab's location.
	CurrentURL(ctx context.Context) (string, error)

	// Navigate loads a URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// NavigateAsync fires navigation without waiting for load. The
	// executor's commit-only strategy builds on this.
	NavigateAsync(ctx context.Context, url string) error

	// Reload refreshes the current document.
	Reload(ctx context.Context) error

	// WaitVisible blocks until the selector is visible or the timeout hits.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Click dispatches a trusted click on the element's center.
	Click(ctx context.Context, selector string) error

	// Focus moves keyboard focus to the element.
	Focus(ctx context.Context, selector string) error

	// SetValue writes an input's value directly.
	SetValue(ctx context.Context, selector, value string) error

	// SendKeys types into the focused element key by key.
	SendKeys(ctx context.Context, selector, text string) error

	// Evaluate runs a JS expression and unmarshals its result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// BodyText returns the rendered text of the document body.
	BodyText(ctx context.Context) (string, error)
}

// tabPage drives a chromedp tab context.
type tabPage struct {
	court  int
	tabCtx context.Context
}

var _ Page = (*tabPage)(nil)

func (p *tabPage) Court() int { return p.court }

func (p *tabPage) run(ctx context.Context, actions ...chromedp.Action) error {
	// The tab context carries the target; the caller context carries the
	// deadline.
	runCtx := p.tabCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.tabCtx, deadline)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.ErrTimeout.Wrap(ctx.Err())
	}
}

func (p *tabPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *tabPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *tabPage) NavigateAsync(ctx context.Context, url string) error {
	expr := "window.location.href = " + jsString(url) + "; true"
	var ok bool
	return p.run(ctx, chromedp.Evaluate(expr, &ok))
}

func (p *tabPage) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

func (p *tabPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *tabPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *tabPage) Focus(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Focus(selector, chromedp.ByQuery))
}

func (p *tabPage) SetValue(ctx context.Context, selector, value string) error {
	return p.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (p *tabPage) SendKeys(ctx context.Context, selector, text string) error {
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *tabPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

func (p *tabPage) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

// jsString quotes a Go string as a JS string literal
func jsString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	out = append(out, '\'')
	return string(out)
}
