package graph

import (
	"encoding/json"
	"math"
	"strconv"
)

// Optional holds a float that may be absent. The zero value is absent.
// Absence is meaningful: an unset probability marks a virgin or
// uninitialized node, never zero.
type Optional struct {
	value float64
	set   bool
}

// Some returns a present value
func Some(v float64) Optional {
	return Optional{value: v, set: true}
}

// None returns an absent value
func None() Optional {
	return Optional{}
}

// Get returns the value and whether it is present
func (o Optional) Get() (float64, bool) {
	return o.value, o.set
}

// IsSet reports whether the value is present
func (o Optional) IsSet() bool {
	return o.set
}

// IsFinite reports whether the value is present and a finite number
func (o Optional) IsFinite() bool {
	return o.set && !math.IsNaN(o.value) && !math.IsInf(o.value, 0)
}

// Or returns the value, or def when absent
func (o Optional) Or(def float64) float64 {
	if !o.set {
		return def
	}
	return o.value
}

// String renders the value, or a dash when absent
func (o Optional) String() string {
	if !o.set {
		return "—"
	}
	return strconv.FormatFloat(o.value, 'f', -1, 64)
}

// MarshalJSON renders absent values as null
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON treats null as absent
func (o *Optional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
