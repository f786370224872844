package app

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"okrhub/api/internal/okr"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("objective_status", func(fl validator.FieldLevel) bool {
		return okr.ValidStatus(fl.Field().String())
	})
	_ = validate.RegisterValidation("visibility", func(fl validator.FieldLevel) bool {
		return okr.ValidVisibility(fl.Field().String())
	})
	_ = validate.RegisterValidation("approval_status", func(fl validator.FieldLevel) bool {
		return okr.ValidApprovalStatus(fl.Field().String())
	})
	_ = validate.RegisterValidation("alignment_type", func(fl validator.FieldLevel) bool {
		return okr.ValidAlignmentType(fl.Field().String())
	})
	_ = validate.RegisterValidation("measurement_type", func(fl validator.FieldLevel) bool {
		switch okr.MeasurementType(fl.Field().String()) {
		case okr.MeasurementNumeric, okr.MeasurementPercentage, okr.MeasurementCurrency, okr.MeasurementBoolean:
			return true
		}
		return false
	})
}

type CreateObjectiveInput struct {
	Title             string `json:"title" validate:"required,max=200"`
	Description       string `json:"description" validate:"max=4000"`
	CycleID           string `json:"cycleId" validate:"required,max=64"`
	OwnerID           string `json:"ownerId"`
	Status            string `json:"status" validate:"omitempty,objective_status"`
	Visibility        string `json:"visibility" validate:"omitempty,visibility"`
	ParentObjectiveID string `json:"parentObjectiveId"`
	SBUID             string `json:"sbuId"`
}

// UpdateObjectiveInput is a partial update; nil fields are left unchanged and
// an empty parentObjectiveId detaches the objective from its parent.
type UpdateObjectiveInput struct {
	Title             *string  `json:"title" validate:"omitempty,max=200"`
	Description       *string  `json:"description" validate:"omitempty,max=4000"`
	Status            *string  `json:"status" validate:"omitempty,objective_status"`
	Progress          *float64 `json:"progress" validate:"omitempty,gte=0,lte=100"`
	Visibility        *string  `json:"visibility" validate:"omitempty,visibility"`
	ParentObjectiveID *string  `json:"parentObjectiveId"`
	SBUID             *string  `json:"sbuId"`
}

type ApprovalInput struct {
	Status string `json:"status" validate:"required,approval_status"`
}

type CreateAlignmentInput struct {
	AlignedObjectiveID string   `json:"alignedObjectiveId" validate:"required"`
	AlignmentType      string   `json:"alignmentType" validate:"omitempty,alignment_type"`
	Weight             *float64 `json:"weight" validate:"omitempty,gt=0,lte=100"`
}

type CandidateFilter struct {
	Query      string
	Visibility string
	SBUID      string
	CycleID    string
}

type CreateKeyResultInput struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Description     string   `json:"description" validate:"max=4000"`
	MeasurementType string   `json:"measurementType" validate:"omitempty,measurement_type"`
	StartValue      float64  `json:"startValue"`
	CurrentValue    float64  `json:"currentValue"`
	TargetValue     float64  `json:"targetValue"`
	BooleanValue    bool     `json:"booleanValue"`
	Unit            string   `json:"unit" validate:"max=32"`
	Weight          *float64 `json:"weight" validate:"omitempty,gt=0,lte=100"`
}

type UpdateKeyResultInput struct {
	Title        *string  `json:"title" validate:"omitempty,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=4000"`
	CurrentValue *float64 `json:"currentValue"`
	TargetValue  *float64 `json:"targetValue"`
	BooleanValue *bool    `json:"booleanValue"`
	Unit         *string  `json:"unit" validate:"omitempty,max=32"`
	Weight       *float64 `json:"weight" validate:"omitempty,gt=0,lte=100"`
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
