package hierarchy

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"okrhub/api/internal/metrics"
	"okrhub/api/internal/okr"
)

const defaultSourceCacheSize = 2048

// CachedSource decorates a Source with bounded per-process caches. Concurrent
// misses for the same id share one fetch. The shared fetch is detached from
// any single caller's cancellation; each caller stops waiting on its own
// context.
type CachedSource struct {
	next      Source
	objects   *lru.Cache[string, okr.Objective]
	relations *lru.Cache[string, okr.ObjectiveWithRelations]
	group     singleflight.Group
}

func NewCachedSource(next Source, size int) (*CachedSource, error) {
	if size <= 0 {
		size = defaultSourceCacheSize
	}
	objects, err := lru.New[string, okr.Objective](size)
	if err != nil {
		return nil, fmt.Errorf("create objective cache: %w", err)
	}
	relations, err := lru.New[string, okr.ObjectiveWithRelations](size)
	if err != nil {
		return nil, fmt.Errorf("create relations cache: %w", err)
	}
	return &CachedSource{next: next, objects: objects, relations: relations}, nil
}

func (s *CachedSource) GetObjective(ctx context.Context, id string) (okr.Objective, error) {
	if cached, ok := s.objects.Get(id); ok {
		metrics.CacheHit("objective")
		return cached, nil
	}
	metrics.CacheMiss("objective")

	fetchCtx := context.WithoutCancel(ctx)
	result, err := s.share(ctx, "objective:"+id, func() (any, error) {
		if cached, ok := s.objects.Get(id); ok {
			return cached, nil
		}
		objective, err := s.next.GetObjective(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		s.objects.Add(id, objective)
		return objective, nil
	})
	if err != nil {
		return okr.Objective{}, err
	}
	return result.(okr.Objective), nil
}

func (s *CachedSource) GetObjectiveWithRelations(ctx context.Context, id string) (okr.ObjectiveWithRelations, error) {
	if cached, ok := s.relations.Get(id); ok {
		metrics.CacheHit("relations")
		return cached, nil
	}
	metrics.CacheMiss("relations")

	fetchCtx := context.WithoutCancel(ctx)
	result, err := s.share(ctx, "relations:"+id, func() (any, error) {
		if cached, ok := s.relations.Get(id); ok {
			return cached, nil
		}
		rel, err := s.next.GetObjectiveWithRelations(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		s.relations.Add(id, rel)
		s.objects.Add(id, rel.Objective)
		return rel, nil
	})
	if err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	return result.(okr.ObjectiveWithRelations), nil
}

// share joins the in-flight fetch for key, or starts it, and waits until it
// finishes or ctx is done.
func (s *CachedSource) share(ctx context.Context, key string, fetch func() (any, error)) (any, error) {
	select {
	case res := <-s.group.DoChan(key, fetch):
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate evicts ids from both caches. Callers pass every objective whose
// own row or neighbourhood changed.
func (s *CachedSource) Invalidate(ids ...string) {
	for _, id := range ids {
		s.objects.Remove(id)
		s.relations.Remove(id)
	}
}

// Purge empties both caches.
func (s *CachedSource) Purge() {
	s.objects.Purge()
	s.relations.Purge()
}
