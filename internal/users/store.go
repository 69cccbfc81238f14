package users

import (
	"context"

	"courtbot-service/internal/booking/domain"
)

// Store is the read surface the scheduler hydrates booking requests
// from. The chat layer owns profile writes; the core only queries.
type Store interface {
	// Get retrieves a user profile by id.
	Get(ctx context.Context, userID int64) (domain.User, error)

	// Put upserts a profile. Present so tests and the chat layer can seed.
	Put(ctx context.Context, user domain.User) error
}
