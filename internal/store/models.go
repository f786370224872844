package store

import "okrhub/api/internal/okr"

type ObjectiveFilter struct {
	CycleID string
	Status  string
	OwnerID string
	SBUID   string
	Query   string
	// ViewerID hides other users' private objectives before Limit applies.
	ViewerID string
	Limit    int
}

// ObjectivePatch carries the optional fields of a partial update. A non-nil
// ParentObjectiveID pointing at "" detaches the objective.
type ObjectivePatch struct {
	Title             *string
	Description       *string
	Status            *okr.Status
	Progress          *float64
	Visibility        *okr.Visibility
	ParentObjectiveID *string
	SBUID             *string
}

func (p ObjectivePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Progress == nil &&
		p.Visibility == nil && p.ParentObjectiveID == nil && p.SBUID == nil
}
