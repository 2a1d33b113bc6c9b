// Package property models the externally visible state of a device as named
// vectors of typed elements, and the registry that publishes them to
// observers and routes update requests to them.
package property

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState reports protocol misuse, such as updating a vector
	// that is not published.
	ErrInvalidState = errors.New("invalid state")

	// ErrRejectedUpdate reports a well-formed update that violates the
	// vector's domain rule. The vector is left unchanged and set to Alert.
	ErrRejectedUpdate = errors.New("rejected update")

	// ErrUnknownProperty is returned when a vector name is not registered.
	ErrUnknownProperty = errors.New("unknown property")
)

// Kind tags a vector with the type of its elements.
type Kind int

const (
	KindSwitch Kind = iota
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindSwitch:
		return "switch"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Perm is the permission observers have on a vector.
type Perm int

const (
	ReadOnly Perm = iota
	WriteOnly
	ReadWrite
)

func (p Perm) String() string {
	switch p {
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	case ReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("perm(%d)", int(p))
	}
}

func (p Perm) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Writable reports whether observers may send updates.
func (p Perm) Writable() bool {
	return p == WriteOnly || p == ReadWrite
}

// State is the lifecycle state of a vector as shown to observers.
type State int

const (
	StateIdle State = iota
	StateOk
	StateBusy
	StateAlert
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOk:
		return "Ok"
	case StateBusy:
		return "Busy"
	case StateAlert:
		return "Alert"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Rule is the selection rule of a switch vector.
type Rule int

const (
	// OneOfMany requires exactly one switch on.
	OneOfMany Rule = iota
	// AtMostOne allows zero or one switch on.
	AtMostOne
	// AnyOfMany places no constraint.
	AnyOfMany
)

func (r Rule) String() string {
	switch r {
	case OneOfMany:
		return "OneOfMany"
	case AtMostOne:
		return "AtMostOne"
	case AnyOfMany:
		return "AnyOfMany"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Meta is the metadata shared by every vector kind.
type Meta struct {
	Name  string
	Label string
	Group string
	Perm  Perm
	State State

	// Persist opts a writable vector into saved configuration.
	Persist bool
}

// Vector is one externally visible property. The concrete types are
// *SwitchVector, *NumberVector and *TextVector.
type Vector interface {
	Kind() Kind
	Meta() *Meta
	Snapshot(device string) Snapshot

	apply(req Request) error
	values() []any
	restore(vals []any)
	settings() []Setting
	loadSetting(s Setting) error
}

// Snapshot is the full state of a vector at one point in time. It is what
// observers receive on define and update.
type Snapshot struct {
	Device    string            `json:"device"`
	Name      string            `json:"name"`
	Label     string            `json:"label"`
	Group     string            `json:"group"`
	Kind      Kind              `json:"kind"`
	Perm      Perm              `json:"perm"`
	State     State             `json:"state"`
	Rule      *Rule             `json:"rule,omitempty"`
	Elements  []ElementSnapshot `json:"elements"`
	Timestamp time.Time         `json:"timestamp"`
}

// ElementSnapshot holds one element value. Value is a bool, float64 or
// string depending on the vector kind.
type ElementSnapshot struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Value  any     `json:"value"`
	Format string  `json:"format,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Step   float64 `json:"step,omitempty"`
}

// Element returns the element snapshot with the given name.
func (s Snapshot) Element(name string) (ElementSnapshot, bool) {
	for _, e := range s.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return ElementSnapshot{}, false
}

func (m *Meta) snapshot(device string, kind Kind) Snapshot {
	return Snapshot{
		Device:    device,
		Name:      m.Name,
		Label:     m.Label,
		Group:     m.Group,
		Kind:      kind,
		Perm:      m.Perm,
		State:     m.State,
		Timestamp: time.Now().UTC(),
	}
}

// Request is an update request from an observer. Only the list matching the
// target vector's kind may be set.
type Request struct {
	Device   string        `json:"device,omitempty"`
	Name     string        `json:"name"`
	Switches []SwitchValue `json:"switches,omitempty"`
	Numbers  []NumberValue `json:"numbers,omitempty"`
	Texts    []TextValue   `json:"texts,omitempty"`
}

type SwitchValue struct {
	Name string `json:"name"`
	On   bool   `json:"on"`
}

type NumberValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type TextValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (r Request) kindOK(k Kind) bool {
	switch k {
	case KindSwitch:
		return len(r.Numbers) == 0 && len(r.Texts) == 0
	case KindNumber:
		return len(r.Switches) == 0 && len(r.Texts) == 0
	case KindText:
		return len(r.Switches) == 0 && len(r.Numbers) == 0
	}
	return false
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejectedUpdate, fmt.Sprintf(format, args...))
}

func checkUnique(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return errors.New("element name cannot be empty")
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("duplicate element name %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
