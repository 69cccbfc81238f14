package notify

import (
	"fmt"

	booking "courtbot-service/internal/booking/domain"
	resdomain "courtbot-service/internal/reservations/domain"
)

// Kind labels the payload so the chat layer can route it
type Kind string

const (
	KindBookingResult Kind = "booking_result"
	KindQueueAck      Kind = "queue_ack"
	KindWaitlist      Kind = "waitlist"
	KindPromotion     Kind = "promotion"
	KindAdvisory      Kind = "advisory"
	KindMainMenu      Kind = "main_menu"
)

// Button is an inline chat button: either a URL link or a callback
type Button struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// Payload is the structured notification handed to the chat layer. The
// core does not speak the chat protocol; it only emits these.
type Payload struct {
	Kind      Kind     `json:"kind"`
	UserID    int64    `json:"user_id"`
	Message   string   `json:"message"`
	ParseMode string   `json:"parse_mode,omitempty"`
	Buttons   []Button `json:"inline_buttons,omitempty"`
}

// SuccessPayload renders a booked reservation: confirmation, calendar
// links as URL buttons, and a cancellation callback.
func SuccessPayload(result booking.Result) Payload {
	message := fmt.Sprintf(
		"✅ *Reserva confirmada*\n\nCancha %d a las %s",
		result.CourtReserved, result.TimeReserved,
	)
	if result.ConfirmationCode != "" {
		message += fmt.Sprintf("\nConfirmación: `%s`", result.ConfirmationCode)
	}

	payload := Payload{
		Kind:      KindBookingResult,
		UserID:    result.User.ID,
		Message:   message,
		ParseMode: "Markdown",
	}

	if links, ok := result.Metadata["calendar_links"].(map[string]string); ok {
		if url, ok := links["google"]; ok {
			payload.Buttons = append(payload.Buttons, Button{Text: "📅 Google Calendar", URL: url})
		}
		if url, ok := links["ical"]; ok {
			payload.Buttons = append(payload.Buttons, Button{Text: "📅 iCal", URL: url})
		}
	}
	if result.RequestID != "" {
		payload.Buttons = append(payload.Buttons, Button{
			Text:         "❌ Cancelar reserva",
			CallbackData: "cancel_reservation:" + result.RequestID,
		})
	}
	return payload
}

// FailurePayload renders a failed attempt with its reason
func FailurePayload(result booking.Result) Payload {
	message := "❌ *No se pudo completar la reserva*"
	if result.Message != "" {
		message += "\n\n" + result.Message
	}
	return Payload{
		Kind:      KindBookingResult,
		UserID:    result.User.ID,
		Message:   message,
		ParseMode: "Markdown",
	}
}

// WaitlistPayload tells a user their position for a slot
func WaitlistPayload(record resdomain.Record, position int) Payload {
	return Payload{
		Kind:   KindWaitlist,
		UserID: record.UserID,
		Message: fmt.Sprintf(
			"⏳ Estás en la posición #%d de la lista de espera para %s a las %s",
			position, record.TargetDate, record.TargetTime,
		),
	}
}

// PromotionPayload tells a user their waitlisted slot is now confirmed
func PromotionPayload(record resdomain.Record) Payload {
	return Payload{
		Kind:   KindPromotion,
		UserID: record.UserID,
		Message: fmt.Sprintf(
			"🎾 ¡Buenas noticias! Tu reserva para %s a las %s fue promovida de la lista de espera",
			record.TargetDate, record.TargetTime,
		),
	}
}

// DelayPayload is the advisory sent when the pool needs recovery before
// a batch can run. It never replaces the final result notification.
func DelayPayload(record resdomain.Record) Payload {
	return Payload{
		Kind:   KindAdvisory,
		UserID: record.UserID,
		Message: fmt.Sprintf(
			"⚠️ Estamos teniendo problemas técnicos, tu reserva para %s a las %s puede demorar",
			record.TargetDate, record.TargetTime,
		),
	}
}

// QueueAckPayload acknowledges a freshly queued reservation
func QueueAckPayload(record resdomain.Record) Payload {
	return Payload{
		Kind:   KindQueueAck,
		UserID: record.UserID,
		Message: fmt.Sprintf(
			"📝 Reserva en cola para %s a las %s\nSe ejecutará automáticamente cuando abra la ventana de 48 horas",
			record.TargetDate, record.TargetTime,
		),
	}
}

// DuplicatePayload warns a user their slot request was rejected as a
// duplicate of an active reservation.
func DuplicatePayload(userID int64, reason string) Payload {
	return Payload{
		Kind:    KindAdvisory,
		UserID:  userID,
		Message: "⚠️ " + reason,
	}
}

// MainMenuPayload asks the chat layer to resend its menu affordance
func MainMenuPayload(userID int64) Payload {
	return Payload{Kind: KindMainMenu, UserID: userID}
}
