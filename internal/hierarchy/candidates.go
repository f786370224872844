package hierarchy

import (
	"strings"

	"okrhub/api/internal/okr"
)

// Predicate is an extra conjunctive filter applied to alignment candidates.
type Predicate func(okr.Objective) bool

// DescendantIDs returns every objective below currentID through parent links,
// at any depth. currentID itself is not included. Repeated ids in a corrupt
// parent chain are visited once.
func DescendantIDs(all []okr.Objective, currentID string) map[string]struct{} {
	children := make(map[string][]string, len(all))
	for _, objective := range all {
		if parentID := objective.ParentID(); parentID != "" {
			children[parentID] = append(children[parentID], objective.ID)
		}
	}

	descendants := make(map[string]struct{})
	stack := append([]string(nil), children[currentID]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == currentID {
			continue
		}
		if _, seen := descendants[id]; seen {
			continue
		}
		descendants[id] = struct{}{}
		stack = append(stack, children[id]...)
	}
	return descendants
}

// AlreadyAlignedIDs returns the far end of every alignment touching
// currentID, in either direction.
func AlreadyAlignedIDs(currentID string, existing []okr.ObjectiveAlignment) map[string]struct{} {
	aligned := make(map[string]struct{})
	for _, alignment := range existing {
		switch currentID {
		case alignment.SourceObjectiveID:
			aligned[alignment.AlignedObjectiveID] = struct{}{}
		case alignment.AlignedObjectiveID:
			aligned[alignment.SourceObjectiveID] = struct{}{}
		}
	}
	return aligned
}

// ValidTargets filters all down to the objectives currentID may align with:
// not itself, none of its descendants, nothing it is already aligned with,
// and matching every predicate. Input order is preserved.
func ValidTargets(all []okr.Objective, currentID string, existing []okr.ObjectiveAlignment, preds ...Predicate) []okr.Objective {
	descendants := DescendantIDs(all, currentID)
	aligned := AlreadyAlignedIDs(currentID, existing)

	out := make([]okr.Objective, 0, len(all))
	for _, objective := range all {
		if objective.ID == currentID {
			continue
		}
		if _, ok := descendants[objective.ID]; ok {
			continue
		}
		if _, ok := aligned[objective.ID]; ok {
			continue
		}
		if !matchesAll(objective, preds) {
			continue
		}
		out = append(out, objective)
	}
	return out
}

func matchesAll(objective okr.Objective, preds []Predicate) bool {
	for _, pred := range preds {
		if pred != nil && !pred(objective) {
			return false
		}
	}
	return true
}

// WithVisibility keeps objectives with the given visibility. Empty matches all.
func WithVisibility(visibility okr.Visibility) Predicate {
	return func(o okr.Objective) bool {
		return visibility == "" || o.Visibility == visibility
	}
}

// WithSBU keeps objectives in the given strategic business unit.
func WithSBU(sbuID string) Predicate {
	return func(o okr.Objective) bool {
		if sbuID == "" {
			return true
		}
		return o.SBUID != nil && *o.SBUID == sbuID
	}
}

func WithCycle(cycleID string) Predicate {
	return func(o okr.Objective) bool {
		return cycleID == "" || o.CycleID == cycleID
	}
}

// WithSearch matches query against title and description, case-insensitively.
func WithSearch(query string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(query))
	return func(o okr.Objective) bool {
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(o.Title), needle) ||
			strings.Contains(strings.ToLower(o.Description), needle)
	}
}

// VisibleTo hides private objectives from everyone but their owner.
func VisibleTo(viewerID string) Predicate {
	return func(o okr.Objective) bool {
		return o.Visibility != okr.VisibilityPrivate || o.OwnerID == viewerID
	}
}
