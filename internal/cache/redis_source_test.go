package cache

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"okrhub/api/internal/okr"
)

type countingSource struct {
	objectives map[string]okr.Objective
	calls      map[string]int
}

func (s *countingSource) GetObjective(_ context.Context, id string) (okr.Objective, error) {
	s.calls["objective:"+id]++
	objective, ok := s.objectives[id]
	if !ok {
		return okr.Objective{}, okr.ErrNotFound
	}
	return objective, nil
}

func (s *countingSource) GetObjectiveWithRelations(_ context.Context, id string) (okr.ObjectiveWithRelations, error) {
	s.calls["relations:"+id]++
	objective, ok := s.objectives[id]
	if !ok {
		return okr.ObjectiveWithRelations{}, okr.ErrNotFound
	}
	rel := okr.ObjectiveWithRelations{Objective: objective}
	for _, child := range s.objectives {
		if child.ParentID() == id {
			rel.ChildObjectives = append(rel.ChildObjectives, child)
		}
	}
	return rel, nil
}

func setupTestCache(t *testing.T) (*RedisSource, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	parent := "root"
	next := &countingSource{
		objectives: map[string]okr.Objective{
			"root":  {ID: "root", Title: "Company"},
			"child": {ID: "child", Title: "Team", ParentObjectiveID: &parent},
		},
		calls: map[string]int{},
	}
	cache, err := NewRedisSource("redis://"+s.Addr(), next, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRedisSource failed: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, next, s
}

func TestRedisSourceRoundTrip(t *testing.T) {
	cache, next, _ := setupTestCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rel, err := cache.GetObjectiveWithRelations(ctx, "root")
		if err != nil {
			t.Fatalf("GetObjectiveWithRelations: %v", err)
		}
		if len(rel.ChildObjectives) != 1 || rel.ChildObjectives[0].ID != "child" {
			t.Fatalf("unexpected children %+v", rel.ChildObjectives)
		}
	}
	if got := next.calls["relations:root"]; got != 1 {
		t.Fatalf("expected one backing fetch, got %d", got)
	}

	child, err := cache.GetObjective(ctx, "child")
	if err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if child.ParentID() != "root" {
		t.Fatalf("parent link lost in cache: %+v", child)
	}
}

func TestRedisSourceKeepsUnknownProgress(t *testing.T) {
	cache, next, _ := setupTestCache(t)
	ctx := context.Background()
	next.objectives["unscored"] = okr.Objective{ID: "unscored", Title: "Unscored", Progress: math.NaN()}

	fresh, err := cache.GetObjective(ctx, "unscored")
	if err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	cached, err := cache.GetObjective(ctx, "unscored")
	if err != nil {
		t.Fatalf("GetObjective (cached): %v", err)
	}
	if next.calls["objective:unscored"] != 1 {
		t.Fatal("second read should come from redis")
	}
	if !math.IsNaN(fresh.Progress) || !math.IsNaN(cached.Progress) {
		t.Fatalf("cached progress %v, fresh %v; both should be NaN", cached.Progress, fresh.Progress)
	}
}

func TestRedisSourceInvalidate(t *testing.T) {
	cache, next, s := setupTestCache(t)
	ctx := context.Background()

	if _, err := cache.GetObjective(ctx, "root"); err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if !s.Exists("okrhub:objective:root") {
		t.Fatal("expected cached key")
	}
	if err := cache.Invalidate(ctx, "root"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if s.Exists("okrhub:objective:root") {
		t.Fatal("key should be gone after invalidate")
	}
	if _, err := cache.GetObjective(ctx, "root"); err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if got := next.calls["objective:root"]; got != 2 {
		t.Fatalf("expected refetch, got %d calls", got)
	}
}

func TestRedisSourceExpires(t *testing.T) {
	cache, next, s := setupTestCache(t)
	ctx := context.Background()

	if _, err := cache.GetObjective(ctx, "root"); err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	s.FastForward(2 * time.Minute)
	if _, err := cache.GetObjective(ctx, "root"); err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if got := next.calls["objective:root"]; got != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", got)
	}
}

func TestRedisSourceDiscardsCorruptEntries(t *testing.T) {
	cache, next, s := setupTestCache(t)
	if err := s.Set("okrhub:objective:root", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	objective, err := cache.GetObjective(context.Background(), "root")
	if err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if objective.Title != "Company" || next.calls["objective:root"] != 1 {
		t.Fatalf("corrupt entry should fall through to source: %+v", objective)
	}
}

func TestRedisSourceFallsThroughWhenRedisDown(t *testing.T) {
	cache, next, s := setupTestCache(t)
	s.Close()

	objective, err := cache.GetObjective(context.Background(), "root")
	if err != nil {
		t.Fatalf("GetObjective should survive redis outage: %v", err)
	}
	if objective.ID != "root" || next.calls["objective:root"] != 1 {
		t.Fatalf("unexpected result %+v", objective)
	}
	if _, err := cache.GetObjective(context.Background(), "missing"); !errors.Is(err, okr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
