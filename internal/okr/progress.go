package okr

import "math"

// KeyResultProgress returns the 0-100 progress of a key result from its
// measured values. Boolean key results are either 0 or 100; the others move
// linearly from start to target and are clamped.
func KeyResultProgress(kr KeyResult) float64 {
	if kr.MeasurementType == MeasurementBoolean {
		if kr.BooleanValue {
			return 100
		}
		return 0
	}
	span := kr.TargetValue - kr.StartValue
	if span == 0 || math.IsNaN(span) {
		if !math.IsNaN(kr.CurrentValue) && kr.CurrentValue >= kr.TargetValue && kr.TargetValue != 0 {
			return 100
		}
		return 0
	}
	return clampProgress((kr.CurrentValue - kr.StartValue) / span * 100)
}

// RollUpProgress is the weight-averaged progress of an objective's key
// results. Non-positive or NaN weights count as 1. No key results means 0.
func RollUpProgress(keyResults []KeyResult) float64 {
	if len(keyResults) == 0 {
		return 0
	}
	var total, weights float64
	for _, kr := range keyResults {
		weight := kr.Weight
		if weight <= 0 || math.IsNaN(weight) {
			weight = 1
		}
		progress := kr.Progress
		if math.IsNaN(progress) {
			progress = 0
		}
		total += progress * weight
		weights += weight
	}
	return round2(clampProgress(total / weights))
}

// KeyResultStatusFor derives a status from progress when the caller did not
// set one explicitly.
func KeyResultStatusFor(progress float64) KeyResultStatus {
	switch {
	case progress >= 100:
		return KeyResultCompleted
	case progress <= 0:
		return KeyResultNotStarted
	default:
		return KeyResultInProgress
	}
}

func clampProgress(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
