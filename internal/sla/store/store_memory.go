package store

import (
	"context"
	"sort"
	"sync"

	"concilia/internal/domain"
	"concilia/internal/sla"
	"concilia/pkg/platform/sentinel"
)

// InMemoryStore keeps SLA statuses in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]domain.SLAStatus
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{statuses: make(map[string]domain.SLAStatus)}
}

func (s *InMemoryStore) Save(_ context.Context, status domain.SLAStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.statuses[status.CaseID]; ok && !sla.Supersedes(status, current) {
		return sentinel.ErrStale
	}
	s.statuses[status.CaseID] = status
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, caseID string) (domain.SLAStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[caseID]
	if !ok {
		return domain.SLAStatus{}, sentinel.ErrNotFound
	}
	return status, nil
}

// ListOpen returns every status not yet closed, ordered by case ID.
func (s *InMemoryStore) ListOpen(_ context.Context) ([]domain.SLAStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SLAStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		if !status.Closed {
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}
