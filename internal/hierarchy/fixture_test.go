package hierarchy

import (
	"context"
	"fmt"
	"sync"

	"okrhub/api/internal/okr"
)

type memSource struct {
	mu         sync.Mutex
	order      []string
	objectives map[string]okr.Objective
	alignments []okr.ObjectiveAlignment
	failures   map[string]error
	calls      map[string]int
}

func newMemSource(objectives []okr.Objective, alignments []okr.ObjectiveAlignment) *memSource {
	src := &memSource{
		objectives: make(map[string]okr.Objective, len(objectives)),
		alignments: alignments,
		failures:   map[string]error{},
		calls:      map[string]int{},
	}
	for _, objective := range objectives {
		src.order = append(src.order, objective.ID)
		src.objectives[objective.ID] = objective
	}
	return src
}

func (s *memSource) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *memSource) GetObjective(_ context.Context, id string) (okr.Objective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["objective:"+id]++
	if err := s.failures[id]; err != nil {
		return okr.Objective{}, err
	}
	objective, ok := s.objectives[id]
	if !ok {
		return okr.Objective{}, fmt.Errorf("objective %s: %w", id, okr.ErrNotFound)
	}
	return objective, nil
}

func (s *memSource) GetObjectiveWithRelations(_ context.Context, id string) (okr.ObjectiveWithRelations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["relations:"+id]++
	if err := s.failures["relations:"+id]; err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	objective, ok := s.objectives[id]
	if !ok {
		return okr.ObjectiveWithRelations{}, fmt.Errorf("objective %s: %w", id, okr.ErrNotFound)
	}

	rel := okr.ObjectiveWithRelations{Objective: objective}
	if parent, ok := s.objectives[objective.ParentID()]; ok {
		rel.ParentObjective = &parent
	}
	for _, childID := range s.order {
		if child := s.objectives[childID]; child.ParentID() == id {
			rel.ChildObjectives = append(rel.ChildObjectives, child)
		}
	}
	for _, alignment := range s.alignments {
		switch id {
		case alignment.SourceObjectiveID:
			far := s.objectives[alignment.AlignedObjectiveID]
			rel.Alignments = append(rel.Alignments, okr.LinkedAlignment{ObjectiveAlignment: alignment, Objective: &far})
		case alignment.AlignedObjectiveID:
			far := s.objectives[alignment.SourceObjectiveID]
			rel.SupportedBy = append(rel.SupportedBy, okr.LinkedAlignment{ObjectiveAlignment: alignment, Objective: &far})
		}
	}
	return rel, nil
}

func objective(id, parentID string) okr.Objective {
	o := okr.Objective{ID: id, Title: "Objective " + id, Visibility: okr.VisibilityTeam}
	if parentID != "" {
		o.ParentObjectiveID = &parentID
	}
	return o
}

func parentChild(id, sourceID, alignedID string) okr.ObjectiveAlignment {
	return okr.ObjectiveAlignment{
		ID:                 id,
		SourceObjectiveID:  sourceID,
		AlignedObjectiveID: alignedID,
		AlignmentType:      okr.AlignmentParentChild,
		Weight:             1,
	}
}

// exampleTree is A with children B and C, and D under B.
func exampleTree() []okr.Objective {
	return []okr.Objective{
		objective("A", ""),
		objective("B", "A"),
		objective("C", "A"),
		objective("D", "B"),
	}
}
