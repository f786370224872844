package okr

import (
	"bytes"
	"encoding/json"
	"math"
)

// Mapped rows keep malformed numbers as NaN, which encoding/json rejects.
// These marshalers emit null for non-finite values instead, and the
// unmarshalers turn null back into NaN so cached copies read the same as
// fresh rows. An absent key leaves the field untouched.

func finite(value float64) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

func (o Objective) MarshalJSON() ([]byte, error) {
	type plain Objective
	return json.Marshal(struct {
		plain
		Progress *float64 `json:"progress"`
	}{plain(o), finite(o.Progress)})
}

func (a ObjectiveAlignment) MarshalJSON() ([]byte, error) {
	type plain ObjectiveAlignment
	return json.Marshal(struct {
		plain
		Weight *float64 `json:"weight"`
	}{plain(a), finite(a.Weight)})
}

func (k KeyResult) MarshalJSON() ([]byte, error) {
	type plain KeyResult
	return json.Marshal(struct {
		plain
		StartValue   *float64 `json:"startValue"`
		CurrentValue *float64 `json:"currentValue"`
		TargetValue  *float64 `json:"targetValue"`
		Weight       *float64 `json:"weight"`
		Progress     *float64 `json:"progress"`
	}{plain(k), finite(k.StartValue), finite(k.CurrentValue), finite(k.TargetValue), finite(k.Weight), finite(k.Progress)})
}

func decodeNumber(raw json.RawMessage, dst *float64) error {
	switch {
	case len(raw) == 0:
		return nil
	case string(raw) == "null":
		*dst = math.NaN()
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (o *Objective) UnmarshalJSON(data []byte) error {
	type plain Objective
	aux := struct {
		*plain
		Progress json.RawMessage `json:"progress"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return decodeNumber(aux.Progress, &o.Progress)
}

func (a *ObjectiveAlignment) UnmarshalJSON(data []byte) error {
	type plain ObjectiveAlignment
	aux := struct {
		*plain
		Weight json.RawMessage `json:"weight"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return decodeNumber(aux.Weight, &a.Weight)
}

func (k *KeyResult) UnmarshalJSON(data []byte) error {
	type plain KeyResult
	aux := struct {
		*plain
		StartValue   json.RawMessage `json:"startValue"`
		CurrentValue json.RawMessage `json:"currentValue"`
		TargetValue  json.RawMessage `json:"targetValue"`
		Weight       json.RawMessage `json:"weight"`
		Progress     json.RawMessage `json:"progress"`
	}{plain: (*plain)(k)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	fields := []struct {
		raw json.RawMessage
		dst *float64
	}{
		{aux.StartValue, &k.StartValue},
		{aux.CurrentValue, &k.CurrentValue},
		{aux.TargetValue, &k.TargetValue},
		{aux.Weight, &k.Weight},
		{aux.Progress, &k.Progress},
	}
	for _, field := range fields {
		if err := decodeNumber(field.raw, field.dst); err != nil {
			return err
		}
	}
	return nil
}

// Types embedding a marshaler would otherwise inherit it and drop their own
// fields, so they encode the embedded value and merge the objects.

func (l LinkedAlignment) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(l.ObjectiveAlignment)
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(struct {
		Objective *Objective `json:"objective,omitempty"`
	}{l.Objective})
	if err != nil {
		return nil, err
	}
	return mergeObjects(base, extra), nil
}

func (o ObjectiveWithRelations) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(o.Objective)
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(struct {
		ParentObjective *Objective        `json:"parentObjective,omitempty"`
		ChildObjectives []Objective       `json:"childObjectives"`
		Alignments      []LinkedAlignment `json:"alignments"`
		SupportedBy     []LinkedAlignment `json:"supportedBy"`
		KeyResults      []KeyResult       `json:"keyResults"`
	}{
		ParentObjective: o.ParentObjective,
		ChildObjectives: nonNil(o.ChildObjectives),
		Alignments:      nonNil(o.Alignments),
		SupportedBy:     nonNil(o.SupportedBy),
		KeyResults:      nonNil(o.KeyResults),
	})
	if err != nil {
		return nil, err
	}
	return mergeObjects(base, extra), nil
}

func (l *LinkedAlignment) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &l.ObjectiveAlignment); err != nil {
		return err
	}
	var extra struct {
		Objective *Objective `json:"objective"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	l.Objective = extra.Objective
	return nil
}

func (o *ObjectiveWithRelations) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.Objective); err != nil {
		return err
	}
	var extra struct {
		ParentObjective *Objective        `json:"parentObjective"`
		ChildObjectives []Objective       `json:"childObjectives"`
		Alignments      []LinkedAlignment `json:"alignments"`
		SupportedBy     []LinkedAlignment `json:"supportedBy"`
		KeyResults      []KeyResult       `json:"keyResults"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	o.ParentObjective = extra.ParentObjective
	o.ChildObjectives = extra.ChildObjectives
	o.Alignments = extra.Alignments
	o.SupportedBy = extra.SupportedBy
	o.KeyResults = extra.KeyResults
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func mergeObjects(a, b []byte) []byte {
	a = bytes.TrimSpace(a)
	b = bytes.TrimSpace(b)
	if len(b) <= 2 {
		return a
	}
	if len(a) <= 2 {
		return b
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a[:len(a)-1]...)
	out = append(out, ',')
	return append(out, b[1:]...)
}
