package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"okrhub/api/internal/okr"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]okr.Record, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) queryRecord(ctx context.Context, query string, args ...any) (okr.Record, error) {
	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, okr.ErrNotFound
	}
	return records[0], nil
}

func (s *PostgresStore) ListObjectives(ctx context.Context, filter ObjectiveFilter) ([]okr.Objective, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CycleID != "" {
		add("cycle_id = $%d", filter.CycleID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if filter.SBUID != "" {
		add("sbu_id = $%d", filter.SBUID)
	}
	if filter.ViewerID != "" {
		add("(visibility <> 'private' OR owner_id = $%d)", filter.ViewerID)
	}
	if filter.Query != "" {
		add("(title ILIKE '%%' || $%[1]d || '%%' OR description ILIKE '%%' || $%[1]d || '%%')", filter.Query)
	}

	query := `SELECT ` + objectiveColumns + ` FROM objectives`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	return mapAll(records, okr.MapObjective), nil
}

func (s *PostgresStore) GetObjective(ctx context.Context, id string) (okr.Objective, error) {
	record, err := s.queryRecord(ctx, `SELECT `+objectiveColumns+` FROM objectives WHERE id = $1`, id)
	if err != nil {
		return okr.Objective{}, wrapLookup("get objective", id, err)
	}
	return okr.MapObjective(record), nil
}

// GetObjectiveWithRelations loads an objective with its parent, direct
// children, alignments in both directions and key results.
func (s *PostgresStore) GetObjectiveWithRelations(ctx context.Context, id string) (okr.ObjectiveWithRelations, error) {
	objective, err := s.GetObjective(ctx, id)
	if err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	rel := okr.ObjectiveWithRelations{Objective: objective}

	if parentID := objective.ParentID(); parentID != "" {
		parent, err := s.GetObjective(ctx, parentID)
		switch {
		case err == nil:
			rel.ParentObjective = &parent
		case !errors.Is(err, okr.ErrNotFound):
			return okr.ObjectiveWithRelations{}, err
		}
	}

	children, err := s.queryRecords(ctx, `
		SELECT `+objectiveColumns+`
		FROM objectives
		WHERE parent_objective_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return okr.ObjectiveWithRelations{}, fmt.Errorf("list child objectives of %s: %w", id, err)
	}
	rel.ChildObjectives = mapAll(children, okr.MapObjective)

	if rel.Alignments, err = s.linkedAlignments(ctx, id, "source_objective_id", "aligned_objective_id"); err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	if rel.SupportedBy, err = s.linkedAlignments(ctx, id, "aligned_objective_id", "source_objective_id"); err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	if rel.KeyResults, err = s.ListKeyResults(ctx, id); err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	return rel, nil
}

// linkedAlignments returns alignments whose near column is id, each joined to
// the objective on the far column. A missing far row leaves Objective nil.
func (s *PostgresStore) linkedAlignments(ctx context.Context, id, near, far string) ([]okr.LinkedAlignment, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM objective_alignments a
		LEFT JOIN objectives o ON o.id = a.%s
		WHERE a.%s = $1
		ORDER BY a.created_at, a.id
	`, qualified(alignmentColumns, "a", ""), qualified(objectiveColumns, "o", "o_"), far, near)

	records, err := s.queryRecords(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list alignments of %s: %w", id, err)
	}
	out := make([]okr.LinkedAlignment, 0, len(records))
	for _, record := range records {
		linked := okr.LinkedAlignment{ObjectiveAlignment: okr.MapAlignment(record)}
		if joined := record.Prefixed("o_"); joined.String("id") != "" {
			objective := okr.MapObjective(joined)
			linked.Objective = &objective
		}
		out = append(out, linked)
	}
	return out, nil
}

func (s *PostgresStore) CreateObjective(ctx context.Context, o okr.Objective) (okr.Objective, error) {
	record, err := s.queryRecord(ctx, `
		INSERT INTO objectives (id, title, description, cycle_id, owner_id, status, progress, visibility,
			parent_objective_id, sbu_id, approval_status)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+objectiveColumns,
		o.ID, o.Title, o.Description, o.CycleID, o.OwnerID, o.Status, o.Progress, o.Visibility,
		o.ParentObjectiveID, o.SBUID, o.ApprovalStatus,
	)
	if err != nil {
		return okr.Objective{}, fmt.Errorf("insert objective: %w", err)
	}
	return okr.MapObjective(record), nil
}

func (s *PostgresStore) UpdateObjective(ctx context.Context, id string, patch ObjectivePatch) (okr.Objective, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Progress != nil {
		set("progress", *patch.Progress)
	}
	if patch.Visibility != nil {
		set("visibility", *patch.Visibility)
	}
	if patch.ParentObjectiveID != nil {
		set("parent_objective_id", nullable(*patch.ParentObjectiveID))
	}
	if patch.SBUID != nil {
		set("sbu_id", nullable(*patch.SBUID))
	}
	if len(sets) == 0 {
		return s.GetObjective(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE objectives SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), objectiveColumns)
	record, err := s.queryRecord(ctx, query, args...)
	if err != nil {
		return okr.Objective{}, wrapLookup("update objective", id, err)
	}
	return okr.MapObjective(record), nil
}

func (s *PostgresStore) SetApprovalStatus(ctx context.Context, id string, status okr.ApprovalStatus) (okr.Objective, error) {
	record, err := s.queryRecord(ctx, `
		UPDATE objectives SET approval_status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+objectiveColumns, status, id)
	if err != nil {
		return okr.Objective{}, wrapLookup("set approval status", id, err)
	}
	return okr.MapObjective(record), nil
}

func (s *PostgresStore) SetObjectiveProgress(ctx context.Context, id string, progress float64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE objectives SET progress = $1, updated_at = NOW() WHERE id = $2`, progress, id)
	if err != nil {
		return fmt.Errorf("set objective progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set objective progress %s: %w", id, okr.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListAlignments(ctx context.Context) ([]okr.ObjectiveAlignment, error) {
	records, err := s.queryRecords(ctx, `SELECT `+alignmentColumns+` FROM objective_alignments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list alignments: %w", err)
	}
	return mapAll(records, okr.MapAlignment), nil
}

// ListAlignmentsFor returns every alignment touching objectiveID in either
// direction, joined to the objective on the other end.
func (s *PostgresStore) ListAlignmentsFor(ctx context.Context, objectiveID string) ([]okr.LinkedAlignment, error) {
	outgoing, err := s.linkedAlignments(ctx, objectiveID, "source_objective_id", "aligned_objective_id")
	if err != nil {
		return nil, err
	}
	incoming, err := s.linkedAlignments(ctx, objectiveID, "aligned_objective_id", "source_objective_id")
	if err != nil {
		return nil, err
	}
	return append(outgoing, incoming...), nil
}

func (s *PostgresStore) GetAlignment(ctx context.Context, id string) (okr.ObjectiveAlignment, error) {
	record, err := s.queryRecord(ctx, `SELECT `+alignmentColumns+` FROM objective_alignments WHERE id = $1`, id)
	if err != nil {
		return okr.ObjectiveAlignment{}, wrapLookup("get alignment", id, err)
	}
	return okr.MapAlignment(record), nil
}

func (s *PostgresStore) CreateAlignment(ctx context.Context, a okr.ObjectiveAlignment) (okr.ObjectiveAlignment, error) {
	record, err := s.queryRecord(ctx, `
		INSERT INTO objective_alignments (id, source_objective_id, aligned_objective_id, alignment_type, weight, created_by)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6)
		RETURNING `+alignmentColumns,
		a.ID, a.SourceObjectiveID, a.AlignedObjectiveID, a.AlignmentType, a.Weight, a.CreatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return okr.ObjectiveAlignment{}, okr.ErrDuplicateAlignment
		}
		return okr.ObjectiveAlignment{}, fmt.Errorf("insert alignment: %w", err)
	}
	return okr.MapAlignment(record), nil
}

// DeleteAlignment removes the alignment and returns the deleted row.
func (s *PostgresStore) DeleteAlignment(ctx context.Context, id string) (okr.ObjectiveAlignment, error) {
	record, err := s.queryRecord(ctx, `DELETE FROM objective_alignments WHERE id = $1 RETURNING `+alignmentColumns, id)
	if err != nil {
		return okr.ObjectiveAlignment{}, wrapLookup("delete alignment", id, err)
	}
	return okr.MapAlignment(record), nil
}

func (s *PostgresStore) ListKeyResults(ctx context.Context, objectiveID string) ([]okr.KeyResult, error) {
	records, err := s.queryRecords(ctx, `
		SELECT `+keyResultColumns+`
		FROM key_results
		WHERE objective_id = $1
		ORDER BY created_at, id
	`, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("list key results of %s: %w", objectiveID, err)
	}
	return mapAll(records, okr.MapKeyResult), nil
}

func (s *PostgresStore) GetKeyResult(ctx context.Context, id string) (okr.KeyResult, error) {
	record, err := s.queryRecord(ctx, `SELECT `+keyResultColumns+` FROM key_results WHERE id = $1`, id)
	if err != nil {
		return okr.KeyResult{}, wrapLookup("get key result", id, err)
	}
	return okr.MapKeyResult(record), nil
}

func (s *PostgresStore) CreateKeyResult(ctx context.Context, kr okr.KeyResult) (okr.KeyResult, error) {
	record, err := s.queryRecord(ctx, `
		INSERT INTO key_results (id, objective_id, title, description, measurement_type, start_value, current_value,
			target_value, boolean_value, unit, status, weight, progress)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+keyResultColumns,
		kr.ID, kr.ObjectiveID, kr.Title, kr.Description, kr.MeasurementType, kr.StartValue, kr.CurrentValue,
		kr.TargetValue, kr.BooleanValue, kr.Unit, kr.Status, kr.Weight, kr.Progress,
	)
	if err != nil {
		return okr.KeyResult{}, fmt.Errorf("insert key result: %w", err)
	}
	return okr.MapKeyResult(record), nil
}

// SaveKeyResult writes every mutable column of kr.
func (s *PostgresStore) SaveKeyResult(ctx context.Context, kr okr.KeyResult) (okr.KeyResult, error) {
	record, err := s.queryRecord(ctx, `
		UPDATE key_results
		SET title = $1, description = $2, current_value = $3, target_value = $4, boolean_value = $5,
			unit = $6, weight = $7, status = $8, progress = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING `+keyResultColumns,
		kr.Title, kr.Description, kr.CurrentValue, kr.TargetValue, kr.BooleanValue,
		kr.Unit, kr.Weight, kr.Status, kr.Progress, kr.ID,
	)
	if err != nil {
		return okr.KeyResult{}, wrapLookup("update key result", kr.ID, err)
	}
	return okr.MapKeyResult(record), nil
}

func (s *PostgresStore) DeleteKeyResult(ctx context.Context, id string) (okr.KeyResult, error) {
	record, err := s.queryRecord(ctx, `DELETE FROM key_results WHERE id = $1 RETURNING `+keyResultColumns, id)
	if err != nil {
		return okr.KeyResult{}, wrapLookup("delete key result", id, err)
	}
	return okr.MapKeyResult(record), nil
}

func (s *PostgresStore) GetUserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "member", nil
	}
	if err != nil {
		return "", fmt.Errorf("read role: %w", err)
	}
	return role, nil
}

// OwnerNames resolves profile names for ids. Unknown ids are absent from the
// result.
func (s *PostgresStore) OwnerNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, full_name FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load owner names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan owner name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner names: %w", err)
	}
	return names, nil
}

func mapAll[T any](records []okr.Record, mapper func(okr.Record) T) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		out = append(out, mapper(record))
	}
	return out
}

func wrapLookup(op, id string, err error) error {
	if errors.Is(err, okr.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, okr.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
