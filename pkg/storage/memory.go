package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

// maxRefreshEvents bounds the in-memory refresh history per dataset
const maxRefreshEvents = 1000

// MemoryStore keeps the journal in process memory. It is the default backend.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    []*models.AlertEvent
	keys      map[string]bool
	refreshes map[string][]*models.RefreshEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:      make(map[string]bool),
		refreshes: make(map[string][]*models.RefreshEvent),
	}
}

func (s *MemoryStore) SaveAlert(ctx context.Context, alert *models.AlertEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alert.Key()
	if s.keys[key] {
		return false, nil
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	stored := *alert
	s.alerts = append(s.alerts, &stored)
	s.keys[key] = true
	return true, nil
}

// ListAlerts returns the newest alerts first. An empty series lists all.
func (s *MemoryStore) ListAlerts(ctx context.Context, series string, limit int) ([]*models.AlertEvent, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.AlertEvent, 0)
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		a := s.alerts[i]
		if series != "" && a.Series != series {
			continue
		}
		out := *a
		result = append(result, &out)
	}
	return result, nil
}

func (s *MemoryStore) RecordRefresh(ctx context.Context, event *models.RefreshEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	stored := *event

	events := append(s.refreshes[event.Dataset], &stored)
	if len(events) > maxRefreshEvents {
		events = events[len(events)-maxRefreshEvents:]
	}
	s.refreshes[event.Dataset] = events
	return nil
}

// ListRefreshes returns the newest refresh outcomes for a dataset first
func (s *MemoryStore) ListRefreshes(ctx context.Context, dataset string, limit int) ([]*models.RefreshEvent, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.refreshes[dataset]
	result := make([]*models.RefreshEvent, 0)
	for i := len(events) - 1; i >= 0 && len(result) < limit; i-- {
		out := *events[i]
		result = append(result, &out)
	}
	return result, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
