package property

import "fmt"

// Switch is a single on/off element.
type Switch struct {
	Name  string
	Label string
	On    bool
}

// SwitchVector is an ordered set of switches under a selection rule.
type SwitchVector struct {
	meta     Meta
	Rule     Rule
	elements []Switch
}

// NewSwitchVector builds a switch vector. Element names must be unique.
func NewSwitchVector(meta Meta, rule Rule, elements ...Switch) (*SwitchVector, error) {
	names := make([]string, len(elements))
	for i, e := range elements {
		names[i] = e.Name
	}
	if err := checkUnique(names); err != nil {
		return nil, fmt.Errorf("switch vector %s: %w", meta.Name, err)
	}

	v := &SwitchVector{meta: meta, Rule: rule, elements: append([]Switch(nil), elements...)}
	if rule != AnyOfMany && v.countOn() > 1 {
		return nil, fmt.Errorf("switch vector %s: more than one switch on under %s", meta.Name, rule)
	}
	return v, nil
}

func (v *SwitchVector) Kind() Kind { return KindSwitch }
func (v *SwitchVector) Meta() *Meta { return &v.meta }

// Elements returns a copy of the switches in display order.
func (v *SwitchVector) Elements() []Switch {
	return append([]Switch(nil), v.elements...)
}

// IsOn reports whether the named switch is on.
func (v *SwitchVector) IsOn(name string) bool {
	if i := v.index(name); i >= 0 {
		return v.elements[i].On
	}
	return false
}

// OnSwitch returns the name of the first switch that is on, or "".
func (v *SwitchVector) OnSwitch() string {
	for _, e := range v.elements {
		if e.On {
			return e.Name
		}
	}
	return ""
}

// Set turns the named switch on or off. Under OneOfMany and AtMostOne
// turning a switch on turns all the others off.
func (v *SwitchVector) Set(name string, on bool) error {
	i := v.index(name)
	if i < 0 {
		return fmt.Errorf("switch vector %s: unknown element %q", v.meta.Name, name)
	}
	if on && v.Rule != AnyOfMany {
		v.Reset()
	}
	v.elements[i].On = on
	return nil
}

// Reset turns every switch off.
func (v *SwitchVector) Reset() {
	for i := range v.elements {
		v.elements[i].On = false
	}
}

func (v *SwitchVector) SetState(s State) { v.meta.State = s }

func (v *SwitchVector) Snapshot(device string) Snapshot {
	s := v.meta.snapshot(device, KindSwitch)
	rule := v.Rule
	s.Rule = &rule
	for _, e := range v.elements {
		s.Elements = append(s.Elements, ElementSnapshot{Name: e.Name, Label: e.Label, Value: e.On})
	}
	return s
}

func (v *SwitchVector) index(name string) int {
	for i, e := range v.elements {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (v *SwitchVector) countOn() int {
	n := 0
	for _, e := range v.elements {
		if e.On {
			n++
		}
	}
	return n
}

func (v *SwitchVector) apply(req Request) error {
	on := 0
	seen := make(map[string]bool, len(req.Switches))
	for _, sw := range req.Switches {
		if v.index(sw.Name) < 0 {
			return rejectf("%s has no switch %q", v.meta.Name, sw.Name)
		}
		if seen[sw.Name] {
			return rejectf("%s names switch %q twice", v.meta.Name, sw.Name)
		}
		seen[sw.Name] = true
		if sw.On {
			on++
		}
	}

	switch v.Rule {
	case OneOfMany:
		if on != 1 {
			return rejectf("%s requires exactly one switch on, got %d", v.meta.Name, on)
		}
	case AtMostOne:
		if on > 1 {
			return rejectf("%s allows at most one switch on, got %d", v.meta.Name, on)
		}
	}

	if v.Rule == AnyOfMany {
		for _, sw := range req.Switches {
			v.elements[v.index(sw.Name)].On = sw.On
		}
		return nil
	}

	v.Reset()
	for _, sw := range req.Switches {
		if sw.On {
			v.elements[v.index(sw.Name)].On = true
		}
	}
	return nil
}

func (v *SwitchVector) values() []any {
	vals := make([]any, len(v.elements))
	for i, e := range v.elements {
		vals[i] = e.On
	}
	return vals
}

func (v *SwitchVector) restore(vals []any) {
	for i := range v.elements {
		v.elements[i].On = vals[i].(bool)
	}
}

func (v *SwitchVector) settings() []Setting {
	out := make([]Setting, 0, len(v.elements))
	for _, e := range v.elements {
		value := switchOff
		if e.On {
			value = switchOn
		}
		out = append(out, Setting{Property: v.meta.Name, Element: e.Name, Value: value})
	}
	return out
}

func (v *SwitchVector) loadSetting(s Setting) error {
	i := v.index(s.Element)
	if i < 0 {
		return fmt.Errorf("switch vector %s: unknown element %q", v.meta.Name, s.Element)
	}
	switch s.Value {
	case switchOn:
		v.elements[i].On = true
	case switchOff:
		v.elements[i].On = false
	default:
		return fmt.Errorf("switch vector %s: bad value %q for %s", v.meta.Name, s.Value, s.Element)
	}
	return nil
}
