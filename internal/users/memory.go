package users

import (
	"context"
	"sync"

	"courtbot-service/internal/booking/domain"
	"courtbot-service/pkg/errors"
)

// MemoryStore holds user profiles in memory.
type MemoryStore struct {
	db map[int64]domain.User
	sync.RWMutex
}

// Compile-time check that MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory user store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{db: make(map[int64]domain.User)}
}

// Get retrieves a user profile by id
func (s *MemoryStore) Get(ctx context.Context, userID int64) (domain.User, error) {
	s.RLock()
	defer s.RUnlock()

	user, ok := s.db[userID]
	if !ok {
		return domain.User{}, errors.ErrNotFound.WithDetails("user_id", userID)
	}
	return user, nil
}

// Put upserts a profile
func (s *MemoryStore) Put(ctx context.Context, user domain.User) error {
	s.Lock()
	defer s.Unlock()

	s.db[user.ID] = user
	return nil
}
