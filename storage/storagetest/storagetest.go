// Package storagetest holds the behavioral suite every storage.Storage
// implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/ahmed-com/pgcalendar/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a Storage implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateIsIdempotent", func(t *testing.T) { testCreateIdempotent(t, newStore(t)) })
	t.Run("UpdateAndNotFound", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("ListByRule", func(t *testing.T) { testListByRule(t, newStore(t)) })
	t.Run("RunningAndStale", func(t *testing.T) { testRunningAndStale(t, newStore(t)) })
	t.Run("Attempts", func(t *testing.T) { testAttempts(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

func newFiring(id, ruleID string, created time.Time) *storage.Firing {
	return &storage.Firing{
		ID:         id,
		RuleID:     ruleID,
		RuleName:   "rule-" + ruleID,
		DaysPassed: 2,
		Hour:       9,
		Weekday:    3,
		Date:       "2000-01-03",
		Status:     storage.FiringStatusPending,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func testCreateAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	f := newFiring("f1", "r1", time.Now())
	require.NoError(t, s.CreateFiring(ctx, f))

	got, err := s.GetFiring(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RuleID)
	assert.Equal(t, 9, got.Hour)
	assert.Equal(t, "2000-01-03", got.Date)
	assert.Equal(t, storage.FiringStatusPending, got.Status)

	_, err = s.GetFiring(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCreateIdempotent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateFiring(ctx, newFiring("f1", "r1", time.Now())))

	err := s.CreateFiring(ctx, newFiring("f1", "r1", time.Now()))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func testUpdate(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	f := newFiring("f1", "r1", time.Now())
	require.NoError(t, s.CreateFiring(ctx, f))

	f.Status = storage.FiringStatusCompleted
	f.Attempts = 2
	require.NoError(t, s.UpdateFiring(ctx, f))

	got, err := s.GetFiring(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, storage.FiringStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Attempts)

	err = s.UpdateFiring(ctx, newFiring("ghost", "r1", time.Now()))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListByRule(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, s.CreateFiring(ctx, newFiring("b", "r1", base.Add(time.Second))))
	require.NoError(t, s.CreateFiring(ctx, newFiring("a", "r1", base.Add(2*time.Second))))
	require.NoError(t, s.CreateFiring(ctx, newFiring("c", "r2", base)))

	firings, err := s.ListFiringsByRuleID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, firings, 2)
	assert.Equal(t, "b", firings[0].ID)
	assert.Equal(t, "a", firings[1].ID)

	none, err := s.ListFiringsByRuleID(ctx, "r3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRunningAndStale(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	stale := newFiring("stale", "r1", old)
	stale.Status = storage.FiringStatusRunning
	stale.StartTime = &old

	fresh := newFiring("fresh", "r1", now)
	fresh.Status = storage.FiringStatusRunning
	fresh.StartTime = &now

	done := newFiring("done", "r1", old)
	done.Status = storage.FiringStatusCompleted
	done.StartTime = &old

	for _, f := range []*storage.Firing{stale, fresh, done} {
		require.NoError(t, s.CreateFiring(ctx, f))
	}

	running, err := s.ListRunningFirings(ctx)
	require.NoError(t, err)
	assert.Len(t, running, 2)

	stales, err := s.ListStaleFirings(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stales, 1)
	assert.Equal(t, "stale", stales[0].ID)
}

func testAttempts(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateFiring(ctx, newFiring("f1", "r1", time.Now())))

	for n := 0; n < 3; n++ {
		a := &storage.Attempt{
			ID:            "a" + string(rune('0'+n)),
			FiringID:      "f1",
			AttemptNumber: n,
			Status:        storage.AttemptStatusRunning,
			StartTime:     time.Now(),
		}
		require.NoError(t, s.CreateAttempt(ctx, a))
		a.Status = storage.AttemptStatusFailed
		require.NoError(t, s.UpdateAttempt(ctx, a))
	}

	attempts, err := s.ListAttemptsByFiringID(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for n, a := range attempts {
		assert.Equal(t, n, a.AttemptNumber)
		assert.Equal(t, storage.AttemptStatusFailed, a.Status)
	}

	err = s.UpdateAttempt(ctx, &storage.Attempt{ID: "x", FiringID: "f1", AttemptNumber: 9})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDelete(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateFiring(ctx, newFiring("f1", "r1", time.Now())))
	require.NoError(t, s.CreateAttempt(ctx, &storage.Attempt{ID: "a0", FiringID: "f1", StartTime: time.Now()}))

	require.NoError(t, s.DeleteFiring(ctx, "f1"))

	_, err := s.GetFiring(ctx, "f1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	firings, err := s.ListFiringsByRuleID(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, firings)

	attempts, err := s.ListAttemptsByFiringID(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, attempts)

	// deleting twice is not an error
	require.NoError(t, s.DeleteFiring(ctx, "f1"))
}
