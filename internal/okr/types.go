// Package okr holds the objective, alignment and key result model shared by the
// store, the hierarchy resolver and the HTTP layer.
package okr

import "time"

type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusAtRisk     Status = "at_risk"
	StatusOnTrack    Status = "on_track"
	StatusCompleted  Status = "completed"
)

type Visibility string

const (
	VisibilityTeam         Visibility = "team"
	VisibilityOrganization Visibility = "organization"
	VisibilityPrivate      Visibility = "private"
	VisibilityDepartment   Visibility = "department"
)

type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalRejected         ApprovalStatus = "rejected"
	ApprovalRequestedChanges ApprovalStatus = "requested_changes"
)

type AlignmentType string

const (
	// AlignmentParentChild is the only type the hierarchy builder traverses.
	// The source objective is the parent, the aligned objective the child.
	AlignmentParentChild   AlignmentType = "parent_child"
	AlignmentContributesTo AlignmentType = "contributes_to"
	AlignmentRelated       AlignmentType = "related"
)

type MeasurementType string

const (
	MeasurementNumeric    MeasurementType = "numeric"
	MeasurementPercentage MeasurementType = "percentage"
	MeasurementCurrency   MeasurementType = "currency"
	MeasurementBoolean    MeasurementType = "boolean"
)

type KeyResultStatus string

const (
	KeyResultNotStarted KeyResultStatus = "not_started"
	KeyResultInProgress KeyResultStatus = "in_progress"
	KeyResultAtRisk     KeyResultStatus = "at_risk"
	KeyResultOnTrack    KeyResultStatus = "on_track"
	KeyResultCompleted  KeyResultStatus = "completed"
)

type Objective struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	CycleID           string         `json:"cycleId"`
	OwnerID           string         `json:"ownerId"`
	Status            Status         `json:"status"`
	Progress          float64        `json:"progress"`
	Visibility        Visibility     `json:"visibility"`
	ParentObjectiveID *string        `json:"parentObjectiveId,omitempty"`
	SBUID             *string        `json:"sbuId,omitempty"`
	ApprovalStatus    ApprovalStatus `json:"approvalStatus"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// ParentID returns the parent objective id or "" for a root.
func (o Objective) ParentID() string {
	if o.ParentObjectiveID == nil {
		return ""
	}
	return *o.ParentObjectiveID
}

type ObjectiveAlignment struct {
	ID                 string        `json:"id"`
	SourceObjectiveID  string        `json:"sourceObjectiveId"`
	AlignedObjectiveID string        `json:"alignedObjectiveId"`
	AlignmentType      AlignmentType `json:"alignmentType"`
	Weight             float64       `json:"weight"`
	CreatedBy          string        `json:"createdBy"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// Touches reports whether objectiveID is either end of the alignment.
func (a ObjectiveAlignment) Touches(objectiveID string) bool {
	return a.SourceObjectiveID == objectiveID || a.AlignedObjectiveID == objectiveID
}

// LinkedAlignment is an alignment joined to the objective on its far end.
// Objective is nil when the joined row was missing.
type LinkedAlignment struct {
	ObjectiveAlignment
	Objective *Objective `json:"objective,omitempty"`
}

type KeyResult struct {
	ID              string          `json:"id"`
	ObjectiveID     string          `json:"objectiveId"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	MeasurementType MeasurementType `json:"measurementType"`
	StartValue      float64         `json:"startValue"`
	CurrentValue    float64         `json:"currentValue"`
	TargetValue     float64         `json:"targetValue"`
	BooleanValue    bool            `json:"booleanValue"`
	Unit            string          `json:"unit,omitempty"`
	Status          KeyResultStatus `json:"status"`
	Weight          float64         `json:"weight"`
	Progress        float64         `json:"progress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Entity is implemented by Objective and ObjectiveWithRelations so callers can
// pass either shape and consumers decide by type, not by probing fields.
type Entity interface {
	Base() Objective
}

func (o Objective) Base() Objective { return o }

// ObjectiveWithRelations is an objective with its neighbourhood loaded.
type ObjectiveWithRelations struct {
	Objective
	ParentObjective *Objective        `json:"parentObjective,omitempty"`
	ChildObjectives []Objective       `json:"childObjectives"`
	Alignments      []LinkedAlignment `json:"alignments"`
	SupportedBy     []LinkedAlignment `json:"supportedBy"`
	KeyResults      []KeyResult       `json:"keyResults"`
}

func (o ObjectiveWithRelations) Base() Objective { return o.Objective }

// Children returns the hierarchy children in traversal order: direct child
// objectives first, then objectives aligned through parent_child alignments
// where this objective is the source. alignmentIDs carries the alignment id
// for children reached through an alignment and "" for direct children.
func (o ObjectiveWithRelations) Children() (children []Objective, alignmentIDs []string) {
	for _, child := range o.ChildObjectives {
		children = append(children, child)
		alignmentIDs = append(alignmentIDs, "")
	}
	for _, alignment := range o.Alignments {
		if alignment.AlignmentType != AlignmentParentChild || alignment.Objective == nil {
			continue
		}
		if alignment.SourceObjectiveID != o.ID {
			continue
		}
		children = append(children, *alignment.Objective)
		alignmentIDs = append(alignmentIDs, alignment.ID)
	}
	return children, alignmentIDs
}

func ValidStatus(value string) bool {
	switch Status(value) {
	case StatusDraft, StatusInProgress, StatusAtRisk, StatusOnTrack, StatusCompleted:
		return true
	}
	return false
}

func ValidVisibility(value string) bool {
	switch Visibility(value) {
	case VisibilityTeam, VisibilityOrganization, VisibilityPrivate, VisibilityDepartment:
		return true
	}
	return false
}

func ValidApprovalStatus(value string) bool {
	switch ApprovalStatus(value) {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalRequestedChanges:
		return true
	}
	return false
}

func ValidAlignmentType(value string) bool {
	switch AlignmentType(value) {
	case AlignmentParentChild, AlignmentContributesTo, AlignmentRelated:
		return true
	}
	return false
}
