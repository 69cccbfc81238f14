package domain

import (
	"strings"

	"courtbot-service/pkg/errors"
)

// User carries the identity and form-fill values for a booking member.
// Values are immutable; build a new one to change anything.
type User struct {
	ID        int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Tier      string `json:"tier,omitempty"`
}

// Tier labels understood by the assignment orchestrator.
const (
	TierAdmin = "admin"
	TierVIP   = "vip"
)

// Validate checks that every field the venue form requires is present
func (u User) Validate() error {
	missing := make([]string, 0, 4)
	if u.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if u.LastName == "" {
		missing = append(missing, "last_name")
	}
	if u.Email == "" {
		missing = append(missing, "email")
	}
	if u.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return errors.ErrValidation.WithDetails("missing", strings.Join(missing, ", "))
	}
	return nil
}

// FullName returns the display name used in notifications
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Priority maps the tier label to a dispatch priority, lower wins
func (u User) Priority() int {
	switch strings.ToLower(u.Tier) {
	case TierAdmin:
		return 0
	case TierVIP:
		return 1
	default:
		return 2
	}
}
