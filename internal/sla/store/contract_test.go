package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/domain"
	"concilia/pkg/platform/sentinel"
)

var t0 = time.Date(2025, time.January, 3, 9, 0, 0, 0, time.UTC)

func status(caseID string, evaluatedAt time.Time) domain.SLAStatus {
	return domain.SLAStatus{
		CaseID:          caseID,
		IntakeDate:      time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
		DaysPlazo:       5,
		Deadline:        time.Date(2025, time.January, 9, 23, 59, 59, 0, time.UTC),
		EscalationLevel: domain.EscalationNone,
		LastEvaluatedAt: evaluatedAt,
	}
}

type statusStore interface {
	Save(ctx context.Context, status domain.SLAStatus) error
	Get(ctx context.Context, caseID string) (domain.SLAStatus, error)
	ListOpen(ctx context.Context) ([]domain.SLAStatus, error)
}

// runStoreContract checks the last-writer-wins rules every status store
// must honour. newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) statusStore) {
	ctx := context.Background()

	t.Run("unknown case is not found", func(t *testing.T) {
		_, err := newStore(t).Get(ctx, "EXP-404")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("later evaluation wins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, status("EXP-1", t0)))

		later := status("EXP-1", t0.Add(time.Hour))
		later.EscalationLevel = domain.EscalationWarning
		require.NoError(t, s.Save(ctx, later))

		got, err := s.Get(ctx, "EXP-1")
		require.NoError(t, err)
		assert.Equal(t, domain.EscalationWarning, got.EscalationLevel)
		assert.True(t, got.LastEvaluatedAt.Equal(later.LastEvaluatedAt))
	})

	t.Run("earlier evaluation is stale", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, status("EXP-1", t0.Add(time.Hour))))

		err := s.Save(ctx, status("EXP-1", t0))
		assert.ErrorIs(t, err, sentinel.ErrStale)
	})

	t.Run("closed case cannot be reopened", func(t *testing.T) {
		s := newStore(t)
		closed := status("EXP-1", t0)
		closed.Closed = true
		closed.ClosedAt = t0
		require.NoError(t, s.Save(ctx, closed))

		err := s.Save(ctx, status("EXP-1", t0.Add(time.Hour)))
		assert.ErrorIs(t, err, sentinel.ErrStale)
	})

	t.Run("extension cannot be dropped", func(t *testing.T) {
		s := newStore(t)
		extended := status("EXP-1", t0)
		extended.Extensions = []domain.DeadlineExtension{{AdditionalDays: 2, Reason: "bank delay", ApprovedBy: "reviewer-1", ApprovedAt: t0}}
		require.NoError(t, s.Save(ctx, extended))

		err := s.Save(ctx, status("EXP-1", t0.Add(time.Hour)))
		assert.ErrorIs(t, err, sentinel.ErrStale)
	})

	t.Run("list open skips closed cases in case order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, status("EXP-2", t0)))
		require.NoError(t, s.Save(ctx, status("EXP-1", t0)))
		closed := status("EXP-3", t0)
		closed.Closed = true
		require.NoError(t, s.Save(ctx, closed))

		open, err := s.ListOpen(ctx)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "EXP-1", open[0].CaseID)
		assert.Equal(t, "EXP-2", open[1].CaseID)
	})
}
