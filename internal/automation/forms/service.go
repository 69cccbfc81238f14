package forms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"courtbot-service/internal/automation/browser"
	booking "courtbot-service/internal/booking/domain"
	"courtbot-service/pkg/errors"
)

const (
	settleDelay   = 2 * time.Second
	submitTimeout = 10 * time.Second
)

// Service drives the venue's booking form end to end for a single page:
// map the user, fill, validate, submit, classify.
type Service struct {
	logger      *zap.Logger
	useScripted bool
}

// NewService builds a form service. Scripted fill (DOM writes plus
// synthetic events) is the default; the humanlike fallback types field
// by field.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		logger:      logger.Named("forms"),
		useScripted: true,
	}
}

// MapUser flattens a booking user into form field values
func (s *Service) MapUser(user booking.User) map[string]string {
	return map[string]string{
		"firstName": user.FirstName,
		"lastName":  user.LastName,
		"phone":     user.Phone,
		"email":     user.Email,
	}
}

// Validate returns the required fields that are missing a value
func (s *Service) Validate(fields map[string]string) []string {
	var missing []string
	for _, key := range RequiredFields {
		if fields[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Fill writes every field value into the form and reports how many
// landed. Scripted first; if nothing was actionable, fall back to
// typing like a person would.
func (s *Service) Fill(ctx context.Context, page browser.Page, fields map[string]string) (int, error) {
	if s.useScripted {
		count, err := s.fillScripted(ctx, page, fields)
		if err == nil && count > 0 {
			return count, nil
		}
		if err != nil {
			s.logger.Warn("scripted fill failed, falling back to typed fill", zap.Error(err))
		}
	}
	return s.fillTyped(ctx, page, fields)
}

// fillScripted sets values through the DOM and fires input/change
// events so the page's framework notices.
func (s *Service) fillScripted(ctx context.Context, page browser.Page, fields map[string]string) (int, error) {
	expr := `(() => {
		const values = {` + fieldLiteral(fields) + `};
		let filled = 0;
		for (const [selector, value] of Object.entries(values)) {
			const input = document.querySelector(selector);
			if (!input) continue;
			input.value = value;
			input.dispatchEvent(new Event('input', { bubbles: true }));
			input.dispatchEvent(new Event('change', { bubbles: true }));
			filled++;
		}
		return filled;
	})()`

	var filled int
	if err := page.Evaluate(ctx, expr, &filled); err != nil {
		return 0, errors.ErrInternal.WithMessage("scripted form fill failed").Wrap(err)
	}
	return filled, nil
}

// fillTyped mimics a human: focus, clear, type, tab out
func (s *Service) fillTyped(ctx context.Context, page browser.Page, fields map[string]string) (int, error) {
	filled := 0
	for _, key := range RequiredFields {
		value, ok := fields[key]
		if !ok || value == "" {
			continue
		}
		selector := FormSelectors[key]
		if err := page.Focus(ctx, selector); err != nil {
			s.logger.Debug("field not focusable", zap.String("field", key), zap.Error(err))
			continue
		}
		if err := page.SetValue(ctx, selector, ""); err != nil {
			continue
		}
		if err := page.SendKeys(ctx, selector, value+"\t"); err != nil {
			continue
		}
		filled++
	}
	if filled == 0 {
		return 0, errors.ErrInternal.WithMessage("could not fill any form fields")
	}
	return filled, nil
}

// CheckValidation inspects the page for inline validation errors:
// localized required-field text in red, or blank client inputs.
func (s *Service) CheckValidation(ctx context.Context, page browser.Page) (bool, []string, error) {
	expr := `(() => {
		const errors = [];
		const redText = Array.from(document.querySelectorAll('*')).filter(el => {
			const style = window.getComputedStyle(el);
			const text = el.textContent.trim();
			return (
				style.color.includes('red') ||
				style.color === 'rgb(255, 0, 0)' ||
				style.color === 'rgba(255, 0, 0, 1)'
			) && text.includes('obligatorio');
		});
		redText.forEach(el => {
			const text = el.textContent.trim();
			if (text && !errors.includes(text)) errors.push(text);
		});
		document.querySelectorAll('input[name*="client"]').forEach(field => {
			if (!field.value.trim()) errors.push(field.name + ' is empty');
		});
		return errors;
	})()`

	var errorTexts []string
	if err := page.Evaluate(ctx, expr, &errorTexts); err != nil {
		return true, []string{fmt.Sprintf("error checking validation: %v", err)}, err
	}

	if len(errorTexts) > 0 {
		s.logger.Warn("form validation errors detected", zap.Strings("errors", errorTexts))
		return true, errorTexts, nil
	}
	return false, nil, nil
}

// Submit clicks the confirmation button: visible "Confirmar" label
// first, any submit-typed button second.
func (s *Service) Submit(ctx context.Context, page browser.Page) error {
	expr := `(() => {
		const buttons = Array.from(document.querySelectorAll('button'));
		const confirm = buttons.find(btn =>
			btn.textContent.includes('Confirmar') && btn.offsetParent !== null
		);
		if (confirm) { confirm.click(); return confirm.textContent.trim(); }
		const submit = document.querySelector('button[type="submit"]');
		if (submit) { submit.click(); return 'submit button'; }
		return '';
	})()`

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	var clicked string
	if err := page.Evaluate(submitCtx, expr, &clicked); err != nil {
		return errors.ErrInternal.WithMessage("form submission failed").Wrap(err)
	}
	if clicked == "" {
		return errors.ErrInternal.WithMessage("no submit button found")
	}

	s.logger.Info("form submitted", zap.String("button", clicked))
	return nil
}

// CheckSuccess classifies the post-submit page
func (s *Service) CheckSuccess(ctx context.Context, page browser.Page) (Outcome, error) {
	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	url, err := page.CurrentURL(ctx)
	if err != nil {
		return Outcome{}, err
	}
	bodyText, err := page.BodyText(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var errorTexts []string
	errExpr := `(() => {
		return Array.from(document.querySelectorAll('.error, .field-error, [class*="error"]'))
			.map(el => el.textContent.trim())
			.filter(text => text);
	})()`
	if err := page.Evaluate(ctx, errExpr, &errorTexts); err != nil {
		s.logger.Debug("error-element scan failed", zap.Error(err))
	}

	outcome := ClassifyPostSubmit(url, bodyText, errorTexts)
	if outcome.Success {
		s.logger.Info("booking success", zap.String("message", outcome.Message),
			zap.String("confirmation_id", outcome.ConfirmationID))
	} else {
		s.logger.Warn("booking failed",
			zap.String("kind", string(outcome.Kind)),
			zap.String("message", outcome.Message))
	}
	return outcome, nil
}

// FillAndSubmit runs the whole sequence: validate input, fill, check the
// form's own validation, submit, classify. Bot detection comes back as
// ErrBotDetected so callers never retry it.
func (s *Service) FillAndSubmit(ctx context.Context, page browser.Page, user booking.User) (Outcome, error) {
	fields := s.MapUser(user)
	if missing := s.Validate(fields); len(missing) > 0 {
		return Outcome{}, errors.ErrValidation.
			WithMessage("missing required fields: " + strings.Join(missing, ", "))
	}

	filled, err := s.Fill(ctx, page, fields)
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("form filled", zap.Int("fields", filled))

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	hasErrors, errorTexts, err := s.CheckValidation(ctx, page)
	if err != nil {
		return Outcome{}, errors.ErrInternal.WithMessage("validation check failed").Wrap(err)
	}
	if hasErrors {
		return Outcome{
			Kind:    KindValidationError,
			Message: "Form validation failed: " + strings.Join(errorTexts, "; "),
			Errors:  errorTexts,
		}, errors.ErrFormValidation.WithDetails("errors", errorTexts)
	}

	if err := s.Submit(ctx, page); err != nil {
		return Outcome{}, err
	}

	outcome, err := s.CheckSuccess(ctx, page)
	if err != nil {
		return Outcome{}, err
	}
	switch outcome.Kind {
	case KindBotDetected:
		return outcome, errors.ErrBotDetected
	case KindValidationError:
		return outcome, errors.ErrFormValidation.WithDetails("errors", outcome.Errors)
	case KindUnknown:
		// No confirmation and no recognizable failure: transient, the
		// retry engine decides what to do with it.
		return outcome, errors.ErrInternal.WithMessage(outcome.Message)
	}
	return outcome, nil
}

// fieldLiteral renders the selector→value map as a JS object literal
func fieldLiteral(fields map[string]string) string {
	var b strings.Builder
	for _, key := range RequiredFields {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %q", FormSelectors[key], value)
	}
	return b.String()
}
