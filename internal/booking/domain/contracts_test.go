package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbot-service/pkg/errors"
)

func testUser() User {
	return User{
		ID:        4242,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "+50212345678",
	}
}

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*User)
		wantError bool
	}{
		{
			name:   "complete profile",
			mutate: func(u *User) {},
		},
		{
			name:      "missing email",
			mutate:    func(u *User) { u.Email = "" },
			wantError: true,
		},
		{
			name:      "missing phone and last name",
			mutate:    func(u *User) { u.Phone = ""; u.LastName = "" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser()
			tt.mutate(&user)

			err := user.Validate()
			if tt.wantError {
				assert.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUser_Priority(t *testing.T) {
	tests := []struct {
		tier string
		want int
	}{
		{tier: "admin", want: 0},
		{tier: "VIP", want: 1},
		{tier: "vip", want: 1},
		{tier: "", want: 2},
		{tier: "regular", want: 2},
	}

	for _, tt := range tests {
		user := testUser()
		user.Tier = tt.tier
		assert.Equal(t, tt.want, user.Priority(), "tier %q", tt.tier)
	}
}

func TestNewCourtPreference(t *testing.T) {
	_, err := NewCourtPreference(nil)
	assert.ErrorIs(t, err, errors.ErrValidation)

	pref, err := NewCourtPreference([]int{2, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, pref.Primary)
	assert.Equal(t, []int{2, 1, 3}, pref.Courts())
}

func TestNewImmediateRequest(t *testing.T) {
	req, err := NewImmediateRequest(testUser(), "2025-07-14", "08:00", 1, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, req.RequestID)
	assert.Equal(t, SourceImmediate, req.Source)
	assert.Equal(t, []int{1}, req.PreferredCourts())
	assert.NotNil(t, req.Metadata, "metadata must never be nil")
	assert.False(t, req.CreatedAt.IsZero())
}

func TestNewQueuedRequest(t *testing.T) {
	tests := []struct {
		name       string
		targetDate string
		targetTime string
		courts     []int
		wantError  bool
	}{
		{
			name:       "valid",
			targetDate: "2025-07-14",
			targetTime: "18:30",
			courts:     []int{1, 2},
		},
		{
			name:       "empty courts",
			targetDate: "2025-07-14",
			targetTime: "18:30",
			courts:     nil,
			wantError:  true,
		},
		{
			name:       "malformed time",
			targetDate: "2025-07-14",
			targetTime: "6pm",
			courts:     []int{1},
			wantError:  true,
		},
		{
			name:       "malformed date",
			targetDate: "14/07/2025",
			targetTime: "18:30",
			courts:     []int{1},
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewQueuedRequest("res-1", testUser(), tt.targetDate, tt.targetTime, tt.courts, SourceQueued, nil, nil)
			if tt.wantError {
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "res-1", req.RequestID)
			assert.Equal(t, SourceQueued, req.Source)
		})
	}
}

func TestRequest_TargetDateTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Guatemala")
	require.NoError(t, err)

	req, err := NewQueuedRequest("res-1", testUser(), "2025-07-14", "08:00", []int{1}, SourceQueued, nil, nil)
	require.NoError(t, err)

	target, err := req.TargetDateTime(loc)
	require.NoError(t, err)
	assert.Equal(t, 8, target.Hour())
	assert.Equal(t, loc, target.Location())
}

func TestRequest_Clone_Isolation(t *testing.T) {
	req, err := NewQueuedRequest("res-1", testUser(), "2025-07-14", "08:00", []int{1, 2}, SourceQueued, map[string]interface{}{"k": "v"}, nil)
	require.NoError(t, err)

	clone := req.Clone()
	clone.Metadata["k"] = "other"
	clone.Preference.Fallbacks[0] = 9

	assert.Equal(t, "v", req.Metadata["k"])
	assert.Equal(t, 2, req.Preference.Fallbacks[0])
}

func TestComposeMetadata(t *testing.T) {
	meta := ComposeMetadata(SourceQueued, "2025-07-14", "08:00", map[string]interface{}{"players": 2})

	assert.Equal(t, "queued", meta["source"])
	assert.Equal(t, "2025-07-14", meta["target_date"])
	assert.Equal(t, "08:00", meta["target_time"])
	assert.Equal(t, 2, meta["players"])
}

func TestSuccessResult(t *testing.T) {
	started := time.Now().Add(-3 * time.Second)
	res := SuccessResult(testUser(), "res-1", 1, "08:00",
		WithConfirmation("ABC123", "https://clublavilla.as.me/schedule/7d558012/confirmation/ABC123"),
		WithMessage("Reserva confirmada"),
		WithTimestamps(started, time.Now()),
	)

	assert.True(t, res.Success())
	assert.Equal(t, "ABC123", res.ConfirmationCode)
	assert.Equal(t, 1, res.CourtReserved)
	assert.Equal(t, "08:00", res.TimeReserved)
	assert.NotNil(t, res.Metadata)
}

func TestFailureResult(t *testing.T) {
	res := FailureResult(testUser(), "res-1",
		WithMessage("slot not available"),
		WithErrors("no form detected"),
	)

	assert.False(t, res.Success())
	assert.Equal(t, []string{"no form detected"}, res.Errors)
	assert.Zero(t, res.CourtReserved)
}

func TestResult_MergeMetadata(t *testing.T) {
	res := SuccessResult(testUser(), "res-1", 1, "08:00", WithResultMetadata(map[string]interface{}{"a": 1}))

	merged := res.MergeMetadata(map[string]interface{}{"b": 2})

	assert.Equal(t, 1, merged.Metadata["a"])
	assert.Equal(t, 2, merged.Metadata["b"])
	_, ok := res.Metadata["b"]
	assert.False(t, ok, "original result must stay untouched")
}
