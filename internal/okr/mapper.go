package okr

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a raw backend row keyed by snake_case column name.
type Record map[string]any

// MapObjective converts a raw objectives row. It never fails: malformed
// numbers become NaN and malformed timestamps the zero time.
func MapObjective(r Record) Objective {
	return Objective{
		ID:                r.String("id"),
		Title:             r.String("title"),
		Description:       r.String("description"),
		CycleID:           r.String("cycle_id"),
		OwnerID:           r.String("owner_id"),
		Status:            Status(r.String("status")),
		Progress:          r.Float("progress"),
		Visibility:        Visibility(r.String("visibility")),
		ParentObjectiveID: r.OptionalString("parent_objective_id"),
		SBUID:             r.OptionalString("sbu_id"),
		ApprovalStatus:    ApprovalStatus(r.String("approval_status")),
		CreatedAt:         r.Time("created_at"),
		UpdatedAt:         r.Time("updated_at"),
	}
}

func MapAlignment(r Record) ObjectiveAlignment {
	return ObjectiveAlignment{
		ID:                 r.String("id"),
		SourceObjectiveID:  r.String("source_objective_id"),
		AlignedObjectiveID: r.String("aligned_objective_id"),
		AlignmentType:      AlignmentType(r.String("alignment_type")),
		Weight:             r.Float("weight"),
		CreatedBy:          r.String("created_by"),
		CreatedAt:          r.Time("created_at"),
	}
}

func MapKeyResult(r Record) KeyResult {
	return KeyResult{
		ID:              r.String("id"),
		ObjectiveID:     r.String("objective_id"),
		Title:           r.String("title"),
		Description:     r.String("description"),
		MeasurementType: MeasurementType(r.String("measurement_type")),
		StartValue:      r.Float("start_value"),
		CurrentValue:    r.Float("current_value"),
		TargetValue:     r.Float("target_value"),
		BooleanValue:    r.Bool("boolean_value"),
		Unit:            r.String("unit"),
		Status:          KeyResultStatus(r.String("status")),
		Weight:          r.Float("weight"),
		Progress:        r.Float("progress"),
		CreatedAt:       r.Time("created_at"),
		UpdatedAt:       r.Time("updated_at"),
	}
}

// Prefixed returns the sub-record whose keys start with prefix, with the
// prefix stripped. Joined queries alias the far-end columns this way.
func (r Record) Prefixed(prefix string) Record {
	out := Record{}
	for key, value := range r {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = value
		}
	}
	return out
}

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (r Record) OptionalString(key string) *string {
	if r[key] == nil {
		return nil
	}
	value := r.String(key)
	if value == "" {
		return nil
	}
	return &value
}

func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		return parseFloat(v)
	case []byte:
		return parseFloat(string(v))
	default:
		return math.NaN()
	}
}

func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		parsed, _ := strconv.ParseBool(v)
		return parsed
	case int64:
		return v != 0
	default:
		return false
	}
}

func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return time.Time{}
	}
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return math.NaN()
	}
	return parsed
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
