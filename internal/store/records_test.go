package store

import (
	"errors"
	"strings"
	"testing"

	"okrhub/api/internal/okr"
)

type fakeRows struct {
	columns []string
	rows    [][]any
	next    int
	err     error
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }

func (r *fakeRows) Next() bool {
	if r.next >= len(r.rows) {
		return false
	}
	r.next++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.next-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func TestScanRecordsFeedsMapper(t *testing.T) {
	rows := &fakeRows{
		columns: []string{"id", "title", "progress", "parent_objective_id", "o_id", "o_title"},
		rows: [][]any{
			{"a1", "Align", []byte("42.50"), nil, "o9", "Far end"},
		},
	}

	records, err := scanRecords(rows)
	if err != nil {
		t.Fatalf("scanRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	objective := okr.MapObjective(records[0])
	if objective.Progress != 42.5 || objective.ParentObjectiveID != nil {
		t.Fatalf("unexpected mapped objective %+v", objective)
	}
	far := okr.MapObjective(records[0].Prefixed("o_"))
	if far.ID != "o9" || far.Title != "Far end" {
		t.Fatalf("unexpected far end %+v", far)
	}
}

func TestScanRecordsPropagatesIterationError(t *testing.T) {
	rows := &fakeRows{columns: []string{"id"}, err: errors.New("conn lost")}
	if _, err := scanRecords(rows); err == nil || !strings.Contains(err.Error(), "conn lost") {
		t.Fatalf("expected iteration error, got %v", err)
	}
}

func TestQualified(t *testing.T) {
	got := qualified("id, title", "o", "o_")
	if got != "o.id AS o_id, o.title AS o_title" {
		t.Fatalf("unexpected projection %q", got)
	}
	if got := qualified("id,\n\ttitle", "a", ""); got != "a.id, a.title" {
		t.Fatalf("unexpected projection %q", got)
	}
}
