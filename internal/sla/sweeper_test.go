package sla_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/domain"
	"concilia/internal/sla"
	"concilia/internal/sla/store"
	"concilia/internal/sla/stream"
	"concilia/pkg/platform/sentinel"
	"concilia/pkg/testutil"
)

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	intake := time.Date(2025, time.June, 6, 9, 0, 0, 0, time.UTC)

	enforcer, err := sla.NewEnforcer(sla.DefaultConfig())
	require.NoError(t, err)

	testutil.Given(t, "one open case near its deadline and one closed case", func(t *testing.T) {
		statuses := store.NewInMemoryStore()
		publisher := stream.NewMemoryPublisher()

		open, err := enforcer.Open("EXP-OPEN", intake, 2, intake)
		require.NoError(t, err)
		require.NoError(t, statuses.Save(ctx, open))

		closed, err := enforcer.Open("EXP-CLOSED", intake, 2, intake)
		require.NoError(t, err)
		closed, err = enforcer.Close(closed, intake.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, statuses.Save(ctx, closed))

		now := open.Deadline.Add(-2 * time.Hour)
		sweeper := sla.NewSweeper(enforcer, statuses, publisher, sla.WithClock(func() time.Time { return now }))

		testutil.When(t, "the sweep runs", func(t *testing.T) {
			report, err := sweeper.Sweep(ctx)
			require.NoError(t, err)

			testutil.Then(t, "only the open case is escalated and published", func(t *testing.T) {
				assert.Equal(t, 1, report.Evaluated)
				assert.Equal(t, 1, report.Escalated)

				got, err := statuses.Get(ctx, "EXP-OPEN")
				require.NoError(t, err)
				assert.Equal(t, domain.EscalationCritical, got.EscalationLevel)
				assert.Equal(t, now, got.LastEvaluatedAt)

				events := publisher.Events()
				require.Len(t, events, 1)
				assert.Equal(t, "EXP-OPEN", events[0].CaseID)
				assert.Equal(t, domain.EscalationNone, events[0].PreviousLevel)
				assert.Equal(t, domain.EscalationCritical, events[0].Level)
				assert.Equal(t, sla.ReasonSweep, events[0].Reason)
			})
		})

		testutil.When(t, "the sweep runs again at the same instant", func(t *testing.T) {
			report, err := sweeper.Sweep(ctx)
			require.NoError(t, err)

			testutil.Then(t, "nothing new is published", func(t *testing.T) {
				assert.Equal(t, 0, report.Escalated)
				assert.Len(t, publisher.Events(), 1)
			})
		})
	})

	testutil.Given(t, "a sweep racing a close", func(t *testing.T) {
		statuses := &racingStore{InMemoryStore: store.NewInMemoryStore()}
		open, err := enforcer.Open("EXP-RACE", intake, 2, intake)
		require.NoError(t, err)
		require.NoError(t, statuses.Save(ctx, open))
		statuses.closeOnList = func() {
			closed, err := enforcer.Close(open, intake.Add(time.Hour))
			require.NoError(t, err)
			require.NoError(t, statuses.Save(ctx, closed))
		}

		sweeper := sla.NewSweeper(enforcer, statuses, stream.NewMemoryPublisher(),
			sla.WithClock(func() time.Time { return open.Deadline.Add(time.Hour) }))

		testutil.Then(t, "the stale sweep write loses and the case stays closed", func(t *testing.T) {
			report, err := sweeper.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Stale)

			got, err := statuses.Get(ctx, "EXP-RACE")
			require.NoError(t, err)
			assert.True(t, got.Closed)
		})
	})
}

// racingStore closes a case between the sweep's read and its write.
type racingStore struct {
	*store.InMemoryStore
	closeOnList func()
}

func (s *racingStore) ListOpen(ctx context.Context) ([]domain.SLAStatus, error) {
	out, err := s.InMemoryStore.ListOpen(ctx)
	if s.closeOnList != nil {
		s.closeOnList()
	}
	return out, err
}

func TestInMemoryStoreRejectsStaleWrites(t *testing.T) {
	ctx := context.Background()
	statuses := store.NewInMemoryStore()
	now := time.Date(2025, time.June, 6, 9, 0, 0, 0, time.UTC)

	require.NoError(t, statuses.Save(ctx, domain.SLAStatus{CaseID: "EXP-1", LastEvaluatedAt: now}))
	err := statuses.Save(ctx, domain.SLAStatus{CaseID: "EXP-1", LastEvaluatedAt: now.Add(-time.Second)})
	require.ErrorIs(t, err, sentinel.ErrStale)

	_, err = statuses.Get(ctx, "EXP-2")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
