package store

import (
	"database/sql"
	"fmt"
	"strings"

	"okrhub/api/internal/okr"
)

const objectiveColumns = `id, title, description, cycle_id, owner_id, status, progress, visibility,
	parent_objective_id, sbu_id, approval_status, created_at, updated_at`

const alignmentColumns = `id, source_objective_id, aligned_objective_id, alignment_type, weight, created_by, created_at`

const keyResultColumns = `id, objective_id, title, description, measurement_type, start_value, current_value,
	target_value, boolean_value, unit, status, weight, progress, created_at, updated_at`

// qualified prefixes every column in list with table and, when alias is set,
// renames it alias+column so joined rows can be split with Record.Prefixed.
func qualified(list, table, alias string) string {
	columns := strings.Split(list, ",")
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		column = strings.TrimSpace(column)
		if alias == "" {
			out = append(out, table+"."+column)
			continue
		}
		out = append(out, fmt.Sprintf("%s.%s AS %s%s", table, column, alias, column))
	}
	return strings.Join(out, ", ")
}

type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanRecords reads every row into a column-keyed okr.Record so the entity
// mapper, not the scan, decides how each value is interpreted.
func scanRecords(rows rowScanner) ([]okr.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	records := make([]okr.Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(okr.Record, len(columns))
		for i, column := range columns {
			record[column] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

var _ rowScanner = (*sql.Rows)(nil)
