package export

import (
	"time"

	"okrhub/api/internal/hierarchy"
	"okrhub/api/internal/okr"
)

const unknownOwner = "Unknown"

// BuildReport flattens a hierarchy graph into report rows. keyResults and
// ownerNames are keyed by objective id and owner id; missing entries render
// as no key results and an "Unknown" owner.
func BuildReport(graph hierarchy.Graph, focus okr.Objective, degraded bool, keyResults map[string][]okr.KeyResult, ownerNames map[string]string) Report {
	report := Report{
		Title:       focus.Title,
		CycleID:     focus.CycleID,
		RootID:      graph.RootID,
		FocusID:     focus.ID,
		GeneratedAt: time.Now().UTC(),
		Truncated:   graph.Truncated,
		Degraded:    degraded,
		Rows:        make([]Row, 0, len(graph.Nodes)),
	}
	for _, node := range graph.Nodes {
		objective := node.Objective
		owner := ownerNames[objective.OwnerID]
		if owner == "" {
			owner = unknownOwner
		}
		row := Row{
			ObjectiveID: objective.ID,
			Level:       node.Level,
			Title:       objective.Title,
			Owner:       owner,
			Status:      string(objective.Status),
			Progress:    objective.Progress,
			Visibility:  string(objective.Visibility),
			ParentID:    node.ParentID,
			Aligned:     node.AlignmentID != "",
			Current:     node.IsCurrent,
		}
		for _, kr := range keyResults[objective.ID] {
			row.KeyResults = append(row.KeyResults, KeyResultRow{
				Title:    kr.Title,
				Current:  kr.CurrentValue,
				Target:   kr.TargetValue,
				Unit:     kr.Unit,
				Progress: okr.KeyResultProgress(kr),
				Status:   string(kr.Status),
			})
		}
		report.Rows = append(report.Rows, row)
	}
	return report
}
