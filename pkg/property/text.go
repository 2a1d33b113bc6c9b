package property

import "fmt"

// Text is a free-form string element.
type Text struct {
	Name  string
	Label string
	Value string
}

// TextVector is an ordered set of text elements.
type TextVector struct {
	meta     Meta
	elements []Text
}

// NewTextVector builds a text vector. Element names must be unique.
func NewTextVector(meta Meta, elements ...Text) (*TextVector, error) {
	names := make([]string, len(elements))
	for i, e := range elements {
		names[i] = e.Name
	}
	if err := checkUnique(names); err != nil {
		return nil, fmt.Errorf("text vector %s: %w", meta.Name, err)
	}
	return &TextVector{meta: meta, elements: append([]Text(nil), elements...)}, nil
}

func (v *TextVector) Kind() Kind { return KindText }
func (v *TextVector) Meta() *Meta { return &v.meta }

func (v *TextVector) Elements() []Text {
	return append([]Text(nil), v.elements...)
}

func (v *TextVector) Value(name string) (string, bool) {
	if i := v.index(name); i >= 0 {
		return v.elements[i].Value, true
	}
	return "", false
}

func (v *TextVector) SetValue(name, value string) error {
	i := v.index(name)
	if i < 0 {
		return fmt.Errorf("text vector %s: unknown element %q", v.meta.Name, name)
	}
	v.elements[i].Value = value
	return nil
}

func (v *TextVector) SetState(s State) { v.meta.State = s }

func (v *TextVector) Snapshot(device string) Snapshot {
	s := v.meta.snapshot(device, KindText)
	for _, e := range v.elements {
		s.Elements = append(s.Elements, ElementSnapshot{Name: e.Name, Label: e.Label, Value: e.Value})
	}
	return s
}

func (v *TextVector) index(name string) int {
	for i, e := range v.elements {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (v *TextVector) apply(req Request) error {
	for _, tv := range req.Texts {
		if v.index(tv.Name) < 0 {
			return rejectf("%s has no element %q", v.meta.Name, tv.Name)
		}
	}
	for _, tv := range req.Texts {
		v.elements[v.index(tv.Name)].Value = tv.Value
	}
	return nil
}

func (v *TextVector) values() []any {
	vals := make([]any, len(v.elements))
	for i, e := range v.elements {
		vals[i] = e.Value
	}
	return vals
}

func (v *TextVector) restore(vals []any) {
	for i := range v.elements {
		v.elements[i].Value = vals[i].(string)
	}
}

func (v *TextVector) settings() []Setting {
	out := make([]Setting, 0, len(v.elements))
	for _, e := range v.elements {
		out = append(out, Setting{Property: v.meta.Name, Element: e.Name, Value: e.Value})
	}
	return out
}

func (v *TextVector) loadSetting(s Setting) error {
	i := v.index(s.Element)
	if i < 0 {
		return fmt.Errorf("text vector %s: unknown element %q", v.meta.Name, s.Element)
	}
	v.elements[i].Value = s.Value
	return nil
}
