package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "concilia/pkg/platform/audit"
	"concilia/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }
func (failingStore) ListByCase(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_Emit(t *testing.T) {
	fixed := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	pub := New(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		CaseID:  "EXP-1",
		Action:  string(audit.EventDeadlineExtended),
		ActorID: "reviewer-1",
	})
	require.NoError(t, err)

	events, err := store.ListByCase(context.Background(), "EXP-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "reviewer-1", events[0].ActorID)
}

func TestPublisher_RejectsIncompleteEvents(t *testing.T) {
	pub := New(memory.NewInMemoryStore())

	assert.Error(t, pub.Emit(context.Background(), audit.Event{Action: "case_closed"}))
	assert.Error(t, pub.Emit(context.Background(), audit.Event{CaseID: "EXP-1"}))
}

func TestPublisher_FailsClosed(t *testing.T) {
	pub := New(failingStore{})

	err := pub.Emit(context.Background(), audit.Event{CaseID: "EXP-1", Action: "case_closed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAuditEvent_Category(t *testing.T) {
	assert.Equal(t, audit.CategoryOperations, audit.EventRecordReconciled.Category())
	assert.Equal(t, audit.CategoryCompliance, audit.EventCaseClosed.Category())
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("unknown").Category())
}
