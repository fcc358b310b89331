package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

const redisKeyPrefix = "ngmon"

// RedisStore implements Store on Redis. Each alert is a string key written
// with SETNX, indexed by sorted sets scored on detection time.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	return &RedisStore{client: rdb}, nil
}

func alertKey(a *models.AlertEvent) string {
	return redisKeyPrefix + ":alert:" + a.Key()
}

func alertIndexKey(series string) string {
	if series == "" {
		return redisKeyPrefix + ":alerts"
	}
	return redisKeyPrefix + ":alerts:" + series
}

func refreshKey(dataset string) string {
	return redisKeyPrefix + ":refresh:" + dataset
}

func (s *RedisStore) SaveAlert(ctx context.Context, alert *models.AlertEvent) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return false, fmt.Errorf("marshal alert: %w", err)
	}

	key := alertKey(alert)
	created, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to save alert: %w", err)
	}
	if !created {
		return false, nil
	}

	score := float64(alert.DetectedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, alertIndexKey(""), redis.Z{Score: score, Member: key})
		pipe.ZAdd(ctx, alertIndexKey(alert.Series), redis.Z{Score: score, Member: key})
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("failed to index alert: %w", err)
	}
	return true, nil
}

func (s *RedisStore) ListAlerts(ctx context.Context, series string, limit int) ([]*models.AlertEvent, error) {
	limit = normalizeLimit(limit)

	keys, err := s.client.ZRevRange(ctx, alertIndexKey(series), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	alerts := make([]*models.AlertEvent, 0, len(keys))
	if len(keys) == 0 {
		return alerts, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a models.AlertEvent
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, nil
}

func (s *RedisStore) RecordRefresh(ctx context.Context, event *models.RefreshEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal refresh event: %w", err)
	}

	key := refreshKey(event.Dataset)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxRefreshEvents-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record refresh: %w", err)
	}
	return nil
}

func (s *RedisStore) ListRefreshes(ctx context.Context, dataset string, limit int) ([]*models.RefreshEvent, error) {
	limit = normalizeLimit(limit)

	raw, err := s.client.LRange(ctx, refreshKey(dataset), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	events := make([]*models.RefreshEvent, 0, len(raw))
	for _, item := range raw {
		var e models.RefreshEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode refresh event: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
