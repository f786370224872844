package search

import (
	"context"

	"okrhub/api/internal/logger"
	"okrhub/api/internal/okr"
)

type indexer interface {
	Searcher
	IndexObjective(record ObjectiveRecord) error
	IndexObjectives(records []ObjectiveRecord) error
}

type recordLoader interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]ObjectiveRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili indexer
	pgfts recordLoader
	log   *logger.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log *logger.Logger) *Service {
	s := &Service{log: log}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("component", "search")
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.log.Error("pgfts search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexObjective indexes an objective (fire-and-forget to Meilisearch).
func (s *Service) IndexObjective(o okr.Objective) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFor(o)
	go func() {
		if err := s.meili.IndexObjective(record); err != nil {
			s.log.Warn("index objective", "objective_id", record.ID, "error", err)
		}
	}()
}

// ReindexAllFromPG reindexes every objective from PostgreSQL into
// Meilisearch and returns how many were pushed.
func (s *Service) ReindexAllFromPG(ctx context.Context) (int, error) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return 0, nil
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexObjectives(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
