// Package cache provides a Redis-backed shared cache for objective lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"okrhub/api/internal/logger"
	"okrhub/api/internal/metrics"
	"okrhub/api/internal/okr"
)

const defaultTTL = 5 * time.Minute

// Source is the lookup surface RedisSource decorates.
type Source interface {
	GetObjective(ctx context.Context, id string) (okr.Objective, error)
	GetObjectiveWithRelations(ctx context.Context, id string) (okr.ObjectiveWithRelations, error)
}

// RedisSource caches objective snapshots in Redis so every API replica shares
// them. Redis failures fall through to the wrapped source.
type RedisSource struct {
	client *redis.Client
	next   Source
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisSource connects to redisURL and wraps next.
func NewRedisSource(redisURL string, next Source, ttl time.Duration, log *logger.Logger) (*RedisSource, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSourceWithClient(client, next, ttl, log), nil
}

func NewRedisSourceWithClient(client *redis.Client, next Source, ttl time.Duration, log *logger.Logger) *RedisSource {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisSource{
		client: client,
		next:   next,
		prefix: "okrhub:",
		ttl:    ttl,
		log:    log.With("component", "cache.redis"),
	}
}

func (s *RedisSource) objectiveKey(id string) string {
	return s.prefix + "objective:" + id
}

func (s *RedisSource) relationsKey(id string) string {
	return s.prefix + "relations:" + id
}

func (s *RedisSource) GetObjective(ctx context.Context, id string) (okr.Objective, error) {
	var cached okr.Objective
	if s.load(ctx, s.objectiveKey(id), &cached) {
		metrics.CacheHit("redis_objective")
		return cached, nil
	}
	metrics.CacheMiss("redis_objective")

	objective, err := s.next.GetObjective(ctx, id)
	if err != nil {
		return okr.Objective{}, err
	}
	s.save(ctx, s.objectiveKey(id), objective)
	return objective, nil
}

func (s *RedisSource) GetObjectiveWithRelations(ctx context.Context, id string) (okr.ObjectiveWithRelations, error) {
	var cached okr.ObjectiveWithRelations
	if s.load(ctx, s.relationsKey(id), &cached) {
		metrics.CacheHit("redis_relations")
		return cached, nil
	}
	metrics.CacheMiss("redis_relations")

	rel, err := s.next.GetObjectiveWithRelations(ctx, id)
	if err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	s.save(ctx, s.relationsKey(id), rel)
	return rel, nil
}

// Invalidate deletes the cached snapshots for ids.
func (s *RedisSource) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		keys = append(keys, s.objectiveKey(id), s.relationsKey(id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cached objectives: %w", err)
	}
	return nil
}

func (s *RedisSource) load(ctx context.Context, key string, dst any) bool {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.log.Warn("redis get failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn("discarding corrupt cache entry", "key", key, "error", err)
		_ = s.client.Del(ctx, key).Err()
		return false
	}
	return true
}

func (s *RedisSource) save(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("marshal cache entry", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn("redis set failed", "key", key, "error", err)
	}
}

func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}
