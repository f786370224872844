package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches objectives with plainto_tsquery, falling back to a prefix
// ILIKE so partial words still hit.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	where, args := pgWhere(q)

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM objectives o WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT o.id, o.title,
			ts_headline('simple', o.description, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30'),
			o.cycle_id, o.owner_id, o.status, o.visibility, coalesce(o.sbu_id, '')
		FROM objectives o
		WHERE %s
		ORDER BY ts_rank(to_tsvector('simple', o.title || ' ' || o.description), plainto_tsquery('simple', $1)) DESC, o.title
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.CycleID, &r.OwnerID, &r.Status, &r.Visibility, &r.SBUID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func pgWhere(q Query) (string, []any) {
	args := []any{strings.TrimSpace(q.Text)}
	clauses := []string{`(to_tsvector('simple', o.title || ' ' || o.description) @@ plainto_tsquery('simple', $1)
		OR o.title ILIKE $1 || '%')`}
	if q.CycleID != "" {
		args = append(args, q.CycleID)
		clauses = append(clauses, fmt.Sprintf("o.cycle_id = $%d", len(args)))
	}
	args = append(args, q.ViewerID)
	clauses = append(clauses, fmt.Sprintf("(o.visibility <> 'private' OR o.owner_id = $%d)", len(args)))
	return strings.Join(clauses, " AND "), args
}

// LoadAllRecords returns every objective for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ObjectiveRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, cycle_id, owner_id, status, visibility,
			coalesce(sbu_id, ''), coalesce(parent_objective_id, '')
		FROM objectives
	`)
	if err != nil {
		return nil, fmt.Errorf("load objectives: %w", err)
	}
	defer rows.Close()

	records := make([]ObjectiveRecord, 0)
	for rows.Next() {
		var r ObjectiveRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.CycleID, &r.OwnerID, &r.Status, &r.Visibility, &r.SBUID, &r.ParentID); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objectives: %w", err)
	}
	return records, nil
}
