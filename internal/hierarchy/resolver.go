package hierarchy

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"okrhub/api/internal/logger"
	"okrhub/api/internal/metrics"
	"okrhub/api/internal/okr"
)

const defaultAncestorCacheSize = 4096

// Tree is the result of resolving an objective up to its root. Path runs
// from the root to the starting objective, both inclusive.
type Tree struct {
	Root     okr.Objective `json:"root"`
	Path     []string      `json:"path"`
	Degraded bool          `json:"degraded"`
}

// Resolver walks parent links upward. Ancestors are memoized in a bounded
// LRU for the resolver's lifetime so each one is fetched at most once while
// it stays resident.
type Resolver struct {
	source Source
	cache  *lru.Cache[string, okr.Objective]
	log    *logger.Logger
}

func NewResolver(source Source, cacheSize int, log *logger.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultAncestorCacheSize
	}
	cache, err := lru.New[string, okr.Objective](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create ancestor cache: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{source: source, cache: cache, log: log.With("component", "hierarchy.resolver")}, nil
}

// Resolve returns the root of start and the path of ids from that root down
// to start. A failed or empty parent lookup, or a parent chain that loops,
// ends the walk early: the last resolved objective is reported as the root
// and the tree is marked Degraded. An ancestor rejected by any of visible
// ends the walk the same way and never appears in the result. Only context
// errors are returned.
func (r *Resolver) Resolve(ctx context.Context, start okr.Entity, visible ...Predicate) (Tree, error) {
	current := start.Base()
	if rel, ok := start.(okr.ObjectiveWithRelations); ok && rel.ParentObjective != nil {
		r.cache.Add(rel.ParentObjective.ID, *rel.ParentObjective)
	}

	path := []string{current.ID}
	seen := map[string]struct{}{current.ID: {}}
	for current.ParentID() != "" {
		if err := ctx.Err(); err != nil {
			return Tree{}, err
		}
		parentID := current.ParentID()
		if _, loop := seen[parentID]; loop {
			r.log.Warn("parent chain loops, stopping at last resolved objective",
				"objective_id", start.Base().ID, "repeated_id", parentID)
			return r.degraded(current, path), nil
		}

		parent, err := r.lookup(ctx, parentID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Tree{}, ctxErr
			}
			r.log.Warn("parent lookup failed, returning partial path",
				"objective_id", start.Base().ID, "parent_id", parentID, "error", err)
			return r.degraded(current, path), nil
		}

		if !matchesAll(parent, visible) {
			r.log.Debug("ancestor hidden from viewer, stopping below it",
				"objective_id", start.Base().ID, "hidden_id", parentID)
			return r.degraded(current, path), nil
		}

		seen[parentID] = struct{}{}
		path = append([]string{parent.ID}, path...)
		current = parent
	}
	return Tree{Root: current, Path: path}, nil
}

func (r *Resolver) degraded(current okr.Objective, path []string) Tree {
	metrics.DegradedResolutions.Inc()
	return Tree{Root: current, Path: path, Degraded: true}
}

func (r *Resolver) lookup(ctx context.Context, id string) (okr.Objective, error) {
	if cached, ok := r.cache.Get(id); ok {
		metrics.CacheHit("ancestor")
		return cached, nil
	}
	metrics.CacheMiss("ancestor")

	parent, err := r.source.GetObjective(ctx, id)
	if err != nil {
		return okr.Objective{}, err
	}
	if parent.ID == "" {
		return okr.Objective{}, fmt.Errorf("lookup %s: %w", id, okr.ErrNotFound)
	}
	r.cache.Add(id, parent)
	return parent, nil
}

// Forget drops ids from the ancestor cache after their parent link changed.
func (r *Resolver) Forget(ids ...string) {
	for _, id := range ids {
		r.cache.Remove(id)
	}
}

// Cached reports whether id is currently memoized.
func (r *Resolver) Cached(id string) bool {
	return r.cache.Contains(id)
}
