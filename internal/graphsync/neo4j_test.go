package graphsync

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"okrhub/api/internal/okr"
)

func TestObjectiveParams(t *testing.T) {
	parent := "A"
	sbu := "sbu-eu"
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	got := objectiveParams([]okr.Objective{
		{ID: "B", Title: "Team", ParentObjectiveID: &parent, SBUID: &sbu, Status: okr.StatusOnTrack, Progress: math.NaN(), Visibility: okr.VisibilityTeam},
		{ID: ""},
	}, now)

	want := []map[string]any{{
		"id":        "B",
		"parent_id": "A",
		"props": map[string]any{
			"title":           "Team",
			"cycle_id":        "",
			"owner_id":        "",
			"status":          "on_track",
			"visibility":      "team",
			"approval_status": "",
			"sbu_id":          "sbu-eu",
			"progress":        nil,
			"synced_at":       "2026-10-18T12:00:00Z",
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("objectiveParams mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignmentParamsSkipsIncompleteRows(t *testing.T) {
	got := alignmentParams([]okr.ObjectiveAlignment{
		{ID: "al-1", SourceObjectiveID: "A", AlignedObjectiveID: "B", AlignmentType: okr.AlignmentParentChild, Weight: 1},
		{ID: "al-2", SourceObjectiveID: "A"},
	}, time.Unix(0, 0).UTC())
	if len(got) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(got))
	}
	if got[0]["source_id"] != "A" || got[0]["aligned_id"] != "B" {
		t.Fatalf("unexpected relationship %v", got[0])
	}
	props := got[0]["props"].(map[string]any)
	if props["alignment_type"] != string(okr.AlignmentParentChild) || props["weight"] != 1.0 {
		t.Fatalf("unexpected props %v", props)
	}
}

func TestNilMirrorIsNoop(t *testing.T) {
	var m *Mirror
	ctx := context.Background()
	if err := m.SyncObjectives(ctx, okr.Objective{ID: "A"}); err != nil {
		t.Fatalf("SyncObjectives: %v", err)
	}
	if err := m.Rebuild(ctx, nil, []okr.ObjectiveAlignment{{ID: "x"}}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewWithoutURIDisablesMirror(t *testing.T) {
	m, err := New(context.Background(), Config{}, nil)
	if err != nil || m != nil {
		t.Fatalf("expected disabled mirror, got %v, %v", m, err)
	}
}
