package hierarchy

import "okrhub/api/internal/okr"

// Redact drops every related objective rejected by any of visible from rel:
// the parent, direct children and the far end of each alignment. rel itself
// is returned unchanged when it is rejected; callers check it first.
func Redact(rel okr.ObjectiveWithRelations, visible ...Predicate) okr.ObjectiveWithRelations {
	if len(visible) == 0 {
		return rel
	}
	if rel.ParentObjective != nil && !matchesAll(*rel.ParentObjective, visible) {
		rel.ParentObjective = nil
	}
	children := make([]okr.Objective, 0, len(rel.ChildObjectives))
	for _, child := range rel.ChildObjectives {
		if matchesAll(child, visible) {
			children = append(children, child)
		}
	}
	rel.ChildObjectives = children
	rel.Alignments = redactLinked(rel.Alignments, visible)
	rel.SupportedBy = redactLinked(rel.SupportedBy, visible)
	return rel
}

func redactLinked(alignments []okr.LinkedAlignment, visible []Predicate) []okr.LinkedAlignment {
	out := make([]okr.LinkedAlignment, 0, len(alignments))
	for _, alignment := range alignments {
		if alignment.Objective != nil && !matchesAll(*alignment.Objective, visible) {
			continue
		}
		out = append(out, alignment)
	}
	return out
}
