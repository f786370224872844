package hierarchy

import (
	"fmt"

	"okrhub/api/internal/okr"
)

// Cycle is a closed walk through the hierarchy; the first id repeats at the end.
type Cycle struct {
	Path []string `json:"path"`
}

// edges is the hierarchy adjacency: parent links plus parent_child
// alignments, parent to child, in input order.
type edges struct {
	order    []string
	children map[string][]string
}

func hierarchyEdges(all []okr.Objective, alignments []okr.ObjectiveAlignment) edges {
	e := edges{children: make(map[string][]string, len(all))}
	known := make(map[string]struct{}, len(all))
	for _, objective := range all {
		if _, ok := known[objective.ID]; !ok {
			known[objective.ID] = struct{}{}
			e.order = append(e.order, objective.ID)
		}
	}
	for _, objective := range all {
		if parentID := objective.ParentID(); parentID != "" {
			e.children[parentID] = append(e.children[parentID], objective.ID)
		}
	}
	for _, alignment := range alignments {
		if alignment.AlignmentType != okr.AlignmentParentChild {
			continue
		}
		e.children[alignment.SourceObjectiveID] = append(e.children[alignment.SourceObjectiveID], alignment.AlignedObjectiveID)
	}
	return e
}

func (e edges) reaches(from, to string) bool {
	visited := map[string]struct{}{}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		stack = append(stack, e.children[id]...)
	}
	return false
}

// ValidateAlignment checks a proposed alignment against the whole hierarchy.
// It rejects self-alignment, unknown ends and duplicates of an existing
// alignment in either direction. For parent_child alignments it also rejects
// any edge that would make an objective its own ancestor.
func ValidateAlignment(all []okr.Objective, alignments []okr.ObjectiveAlignment, sourceID, alignedID string, alignmentType okr.AlignmentType) error {
	if sourceID == alignedID {
		return okr.ErrSelfAlignment
	}
	if !containsObjective(all, sourceID) || !containsObjective(all, alignedID) {
		return okr.ErrInvalidAlignmentEnd
	}
	for _, existing := range alignments {
		if existing.Touches(sourceID) && existing.Touches(alignedID) {
			return okr.ErrDuplicateAlignment
		}
	}
	if alignmentType != okr.AlignmentParentChild {
		return nil
	}
	if hierarchyEdges(all, alignments).reaches(alignedID, sourceID) {
		return fmt.Errorf("%s already sits above %s: %w", alignedID, sourceID, okr.ErrCycle)
	}
	return nil
}

// ValidateParent checks that pointing childID at parentID keeps the
// hierarchy acyclic. An empty parentID detaches the objective and is always
// valid.
func ValidateParent(all []okr.Objective, alignments []okr.ObjectiveAlignment, childID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == childID {
		return okr.ErrSelfAlignment
	}
	if !containsObjective(all, parentID) {
		return okr.ErrInvalidAlignmentEnd
	}
	if hierarchyEdges(all, alignments).reaches(childID, parentID) {
		return fmt.Errorf("%s is below %s: %w", parentID, childID, okr.ErrCycle)
	}
	return nil
}

// FindCycles reports every back edge found by a white/gray/black DFS over the
// hierarchy, each expanded to the cycle it closes.
func FindCycles(all []okr.Objective, alignments []okr.ObjectiveAlignment) []Cycle {
	const (
		white = iota
		gray
		black
	)

	e := hierarchyEdges(all, alignments)
	color := make(map[string]int, len(e.order))
	var stack []string
	var cycles []Cycle

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range e.children[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				cycles = append(cycles, Cycle{Path: closeCycle(stack, child)})
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range e.order {
		if color[id] == white {
			dfs(id)
		}
	}
	return cycles
}

func closeCycle(stack []string, repeated string) []string {
	start := 0
	for i, id := range stack {
		if id == repeated {
			start = i
			break
		}
	}
	path := append([]string(nil), stack[start:]...)
	return append(path, repeated)
}

func containsObjective(all []okr.Objective, id string) bool {
	for _, objective := range all {
		if objective.ID == id {
			return true
		}
	}
	return false
}
