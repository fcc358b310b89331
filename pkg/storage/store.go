package storage

import (
	"context"
	"fmt"

	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

// DefaultListLimit applies when a caller passes a non-positive limit
const DefaultListLimit = 100

// Store is an append-only journal of detected alerts and refresh outcomes.
// Nothing in it is ever loaded back into the dataset cache.
type Store interface {
	// SaveAlert journals an alert and reports whether it was new.
	// An alert with the same series, kind and date is kept only once.
	SaveAlert(ctx context.Context, alert *models.AlertEvent) (bool, error)
	ListAlerts(ctx context.Context, series string, limit int) ([]*models.AlertEvent, error)

	RecordRefresh(ctx context.Context, event *models.RefreshEvent) error
	ListRefreshes(ctx context.Context, dataset string, limit int) ([]*models.RefreshEvent, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.StorageBackend
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "", config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StoragePostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.StorageRedis:
		return NewRedisStore(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
