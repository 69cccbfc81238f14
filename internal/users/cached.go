package users

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"courtbot-service/internal/booking/domain"
)

const (
	profileTTL      = 10 * time.Minute
	cleanupInterval = 30 * time.Minute
)

// CachedStore memoizes profile reads so batch hydration does not hit the
// backing store once per record. Writes pass through and refresh the entry.
type CachedStore struct {
	next   Store
	caches *cache.Cache
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps a store with an in-process profile cache
func NewCachedStore(next Store) *CachedStore {
	return &CachedStore{
		next:   next,
		caches: cache.New(profileTTL, cleanupInterval),
	}
}

// Get retrieves a user profile, preferring the cache
func (s *CachedStore) Get(ctx context.Context, userID int64) (domain.User, error) {
	key := strconv.FormatInt(userID, 10)
	if data, found := s.caches.Get(key); found {
		return data.(domain.User), nil
	}

	user, err := s.next.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	s.caches.Set(key, user, cache.DefaultExpiration)

	return user, nil
}

// Put upserts a profile and refreshes the cached entry
func (s *CachedStore) Put(ctx context.Context, user domain.User) error {
	if err := s.next.Put(ctx, user); err != nil {
		return err
	}
	s.caches.Set(strconv.FormatInt(user.ID, 10), user, cache.DefaultExpiration)
	return nil
}
