package property

import (
	"fmt"
	"math"
	"strconv"
)

// Bounds decides what happens to a number outside [Min, Max].
type Bounds int

const (
	// Clamp moves out-of-range values to the nearest limit.
	Clamp Bounds = iota
	// Reject refuses the whole update.
	Reject
)

// Number is a numeric element. When Min >= Max the element is unbounded.
type Number struct {
	Name   string
	Label  string
	Format string
	Min    float64
	Max    float64
	Step   float64
	Value  float64
}

func (n Number) bounded() bool {
	return n.Min < n.Max
}

// fit applies the bounds policy to value. NaN and infinities never fit.
func (n Number) fit(value float64, bounds Bounds) (float64, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	if !n.bounded() || (value >= n.Min && value <= n.Max) {
		return value, true
	}
	if bounds == Reject {
		return 0, false
	}
	return min(max(value, n.Min), n.Max), true
}

// NumberVector is an ordered set of numeric elements.
type NumberVector struct {
	meta     Meta
	Bounds   Bounds
	elements []Number
}

// NewNumberVector builds a number vector. Element names must be unique.
func NewNumberVector(meta Meta, bounds Bounds, elements ...Number) (*NumberVector, error) {
	names := make([]string, len(elements))
	for i, e := range elements {
		names[i] = e.Name
	}
	if err := checkUnique(names); err != nil {
		return nil, fmt.Errorf("number vector %s: %w", meta.Name, err)
	}
	return &NumberVector{meta: meta, Bounds: bounds, elements: append([]Number(nil), elements...)}, nil
}

func (v *NumberVector) Kind() Kind { return KindNumber }
func (v *NumberVector) Meta() *Meta { return &v.meta }

func (v *NumberVector) Elements() []Number {
	return append([]Number(nil), v.elements...)
}

// Value returns the value of the named element.
func (v *NumberVector) Value(name string) (float64, bool) {
	if i := v.index(name); i >= 0 {
		return v.elements[i].Value, true
	}
	return 0, false
}

// SetValue stores a value for the named element without any bounds check.
// Drivers use it to report readings from the device.
func (v *NumberVector) SetValue(name string, value float64) error {
	i := v.index(name)
	if i < 0 {
		return fmt.Errorf("number vector %s: unknown element %q", v.meta.Name, name)
	}
	v.elements[i].Value = value
	return nil
}

// SetLimits changes the range of the named element.
func (v *NumberVector) SetLimits(name string, min, max, step float64) error {
	i := v.index(name)
	if i < 0 {
		return fmt.Errorf("number vector %s: unknown element %q", v.meta.Name, name)
	}
	v.elements[i].Min, v.elements[i].Max, v.elements[i].Step = min, max, step
	return nil
}

func (v *NumberVector) SetState(s State) { v.meta.State = s }

func (v *NumberVector) Snapshot(device string) Snapshot {
	s := v.meta.snapshot(device, KindNumber)
	for _, e := range v.elements {
		s.Elements = append(s.Elements, ElementSnapshot{
			Name:   e.Name,
			Label:  e.Label,
			Value:  e.Value,
			Format: e.Format,
			Min:    e.Min,
			Max:    e.Max,
			Step:   e.Step,
		})
	}
	return s
}

func (v *NumberVector) index(name string) int {
	for i, e := range v.elements {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (v *NumberVector) apply(req Request) error {
	next := make([]float64, len(req.Numbers))
	for i, nv := range req.Numbers {
		idx := v.index(nv.Name)
		if idx < 0 {
			return rejectf("%s has no element %q", v.meta.Name, nv.Name)
		}
		e := v.elements[idx]
		value, ok := e.fit(nv.Value, v.Bounds)
		if !ok {
			return rejectf("%s.%s=%g outside [%g, %g]", v.meta.Name, e.Name, nv.Value, e.Min, e.Max)
		}
		next[i] = value
	}

	for i, nv := range req.Numbers {
		v.elements[v.index(nv.Name)].Value = next[i]
	}
	return nil
}

func (v *NumberVector) values() []any {
	vals := make([]any, len(v.elements))
	for i, e := range v.elements {
		vals[i] = e.Value
	}
	return vals
}

func (v *NumberVector) restore(vals []any) {
	for i := range v.elements {
		v.elements[i].Value = vals[i].(float64)
	}
}

func (v *NumberVector) settings() []Setting {
	out := make([]Setting, 0, len(v.elements))
	for _, e := range v.elements {
		out = append(out, Setting{
			Property: v.meta.Name,
			Element:  e.Name,
			Value:    strconv.FormatFloat(e.Value, 'g', -1, 64),
		})
	}
	return out
}

func (v *NumberVector) loadSetting(s Setting) error {
	i := v.index(s.Element)
	if i < 0 {
		return fmt.Errorf("number vector %s: unknown element %q", v.meta.Name, s.Element)
	}
	f, err := strconv.ParseFloat(s.Value, 64)
	if err != nil {
		return fmt.Errorf("number vector %s: bad value for %s: %v", v.meta.Name, s.Element, err)
	}
	f, ok := v.elements[i].fit(f, v.Bounds)
	if !ok {
		return fmt.Errorf("number vector %s: value %s of %s out of range", v.meta.Name, s.Value, s.Element)
	}
	v.elements[i].Value = f
	return nil
}
