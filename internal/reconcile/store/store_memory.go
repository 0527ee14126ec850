package store

import (
	"context"
	"sort"
	"sync"

	"concilia/internal/domain"
	"concilia/pkg/platform/sentinel"
)

// InMemoryStore keeps every revision of every case in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*domain.UnifiedMetadataRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]*domain.UnifiedMetadataRecord)}
}

// Append stores record as the next revision. A revision that does not
// directly follow the latest one is rejected with sentinel.ErrConflict.
func (s *InMemoryStore) Append(_ context.Context, record *domain.UnifiedMetadataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.records[record.CaseID]
	if record.Revision != len(history)+1 {
		return sentinel.ErrConflict
	}
	if len(history) > 0 && history[len(history)-1].ID != record.SupersedesID {
		return sentinel.ErrConflict
	}
	clone := *record
	s.records[record.CaseID] = append(history, &clone)
	return nil
}

func (s *InMemoryStore) Latest(_ context.Context, caseID string) (*domain.UnifiedMetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.records[caseID]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	clone := *history[len(history)-1]
	return &clone, nil
}

// History returns every revision, oldest first.
func (s *InMemoryStore) History(_ context.Context, caseID string) ([]*domain.UnifiedMetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.records[caseID]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	out := make([]*domain.UnifiedMetadataRecord, len(history))
	for i, r := range history {
		clone := *r
		out[i] = &clone
	}
	return out, nil
}

// ListLatest returns the latest revision of every case, ordered by case ID.
func (s *InMemoryStore) ListLatest(_ context.Context) ([]*domain.UnifiedMetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.UnifiedMetadataRecord, 0, len(s.records))
	for _, history := range s.records {
		clone := *history[len(history)-1]
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}
