package forms

import (
	"regexp"
	"strings"

	"courtbot-service/internal/venue"
)

// OutcomeKind names the post-submit page classification
type OutcomeKind string

const (
	KindBotDetected     OutcomeKind = "bot_detected"
	KindValidationError OutcomeKind = "validation_error"
	KindConfirmation    OutcomeKind = "confirmation"
	KindThankYou        OutcomeKind = "thank_you"
	KindUnknown         OutcomeKind = "unknown"
)

// Outcome is the classified result of a form submission
type Outcome struct {
	Success        bool
	Kind           OutcomeKind
	ConfirmationID string
	Greeting       string
	Message        string
	Errors         []string
}

var (
	confirmationRe = regexp.MustCompile(`/confirmation/([a-zA-Z0-9]+)`)
	greetingRe     = regexp.MustCompile(`([A-Za-z]+),\s*¡Tu cita está confirmada!`)
)

// ClassifyPostSubmit grades the page after submit, in strict priority:
// bot-detection banner, inline validation errors, confirmation URL,
// thank-you phrasing, then unknown. The inputs are plain strings so the
// classification is testable without a browser.
func ClassifyPostSubmit(url, bodyText string, errorTexts []string) Outcome {
	for _, phrase := range venue.BotDetectionPhrases {
		if strings.Contains(bodyText, phrase) {
			return Outcome{
				Kind:    KindBotDetected,
				Message: "Sistema detectó uso automatizado - contactar negocio para reservar",
			}
		}
	}

	if len(errorTexts) > 0 {
		return Outcome{
			Kind:    KindValidationError,
			Message: "Errores de validación: " + strings.Join(errorTexts, ", "),
			Errors:  append([]string(nil), errorTexts...),
		}
	}

	if match := confirmationRe.FindStringSubmatch(url); match != nil {
		outcome := Outcome{
			Success:        true,
			Kind:           KindConfirmation,
			ConfirmationID: match[1],
			Message:        "Reserva confirmada",
		}
		if greeting := greetingRe.FindStringSubmatch(bodyText); greeting != nil {
			outcome.Greeting = greeting[1]
		}
		return outcome
	}

	lower := strings.ToLower(bodyText)
	if strings.Contains(lower, "gracias") && strings.Contains(lower, "reserva") {
		return Outcome{
			Success: true,
			Kind:    KindThankYou,
			Message: "Reserva completada",
		}
	}

	return Outcome{
		Kind:    KindUnknown,
		Message: "No confirmation detected",
	}
}
