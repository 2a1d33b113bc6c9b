package capability

import (
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	AbsFocusPosition      = "ABS_FOCUS_POSITION"
	FocusAbsolutePosition = "FOCUS_ABSOLUTE_POSITION"
	RelFocusPosition      = "REL_FOCUS_POSITION"
	FocusRelativePosition = "FOCUS_RELATIVE_POSITION"
	FocusMotion           = "FOCUS_MOTION"
	FocusInward           = "FOCUS_INWARD"
	FocusOutward          = "FOCUS_OUTWARD"
	FocusAbortMotion      = "FOCUS_ABORT_MOTION"
	FocusMax              = "FOCUS_MAX"
	FocusMaxValue         = "FOCUS_MAX_VALUE"
)

const DefaultFocusMax = 100000

type FocusDirection int

const (
	Inward FocusDirection = iota
	Outward
)

func (d FocusDirection) String() string {
	if d == Inward {
		return "inward"
	}
	return "outward"
}

// FocusMover drives the focuser.
type FocusMover interface {
	MoveAbsFocuser(d *driver.Driver, target uint32) (property.State, error)
	MoveRelFocuser(d *driver.Driver, dir FocusDirection, ticks uint32) (property.State, error)
	AbortFocuser(d *driver.Driver) error
}

// Focuser publishes absolute and relative focuser motion.
type Focuser struct {
	mover    FocusMover
	Absolute *property.NumberVector
	Relative *property.NumberVector
	Motion   *property.SwitchVector
	Abort    *property.SwitchVector
	Max      *property.NumberVector
}

func NewFocuser(m FocusMover) *Focuser {
	return &Focuser{mover: m}
}

func (c *Focuser) Interface() driver.Interface { return driver.InterfaceFocuser }

func (c *Focuser) Install(d *driver.Driver) error {
	meta := func(name, label string) property.Meta {
		return property.Meta{Name: name, Label: label, Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle}
	}

	var err error
	// Positions and steps beyond the travel range are clamped.
	if c.Absolute, err = property.NewNumberVector(meta(AbsFocusPosition, "Absolute Position"), property.Clamp,
		property.Number{Name: FocusAbsolutePosition, Label: "Steps", Format: "%.f", Min: 0, Max: DefaultFocusMax, Step: 1000},
	); err != nil {
		return err
	}
	if c.Relative, err = property.NewNumberVector(meta(RelFocusPosition, "Relative Position"), property.Clamp,
		property.Number{Name: FocusRelativePosition, Label: "Steps", Format: "%.f", Min: 0, Max: DefaultFocusMax / 2, Step: 100},
	); err != nil {
		return err
	}
	if c.Motion, err = property.NewSwitchVector(meta(FocusMotion, "Direction"), property.OneOfMany,
		property.Switch{Name: FocusInward, Label: "Focus In", On: true},
		property.Switch{Name: FocusOutward, Label: "Focus Out"},
	); err != nil {
		return err
	}
	if c.Abort, err = newAbortVector(FocusAbortMotion, "Abort Motion", driver.MainControlTab); err != nil {
		return err
	}

	maxMeta := meta(FocusMax, "Max. Position")
	maxMeta.Group = driver.OptionsTab
	maxMeta.Persist = true
	// Out of range maximums are rejected.
	if c.Max, err = property.NewNumberVector(maxMeta, property.Reject,
		property.Number{Name: FocusMaxValue, Label: "Steps", Format: "%.f", Min: 1, Max: 1e7, Step: 1000, Value: DefaultFocusMax},
	); err != nil {
		return err
	}

	reg := d.Registry()
	if err := reg.Register(c.Absolute, property.WhileConnected, func(property.Vector) error {
		target, _ := c.Absolute.Value(FocusAbsolutePosition)
		st, err := c.mover.MoveAbsFocuser(d, uint32(target))
		return settle(c.Absolute, st, err)
	}); err != nil {
		return err
	}
	if err := reg.Register(c.Relative, property.WhileConnected, func(property.Vector) error {
		ticks, _ := c.Relative.Value(FocusRelativePosition)
		st, err := c.mover.MoveRelFocuser(d, c.Direction(), uint32(ticks))
		return settle(c.Relative, st, err)
	}); err != nil {
		return err
	}
	if err := reg.Register(c.Motion, property.WhileConnected, nil); err != nil {
		return err
	}
	if err := reg.Register(c.Abort, property.WhileConnected, func(property.Vector) error {
		err := c.mover.AbortFocuser(d)
		c.Abort.Reset()
		if err != nil {
			return err
		}
		for _, v := range []*property.NumberVector{c.Absolute, c.Relative} {
			if v.Meta().State == property.StateBusy {
				v.SetState(property.StateIdle)
				publish(d, v)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return reg.Register(c.Max, property.WhileConnected, func(property.Vector) error {
		c.SyncLimits(d)
		return nil
	})
}

// Direction returns the direction selected for relative moves.
func (c *Focuser) Direction() FocusDirection {
	if c.Motion.IsOn(FocusOutward) {
		return Outward
	}
	return Inward
}

// Position returns the last reported absolute position.
func (c *Focuser) Position() uint32 {
	v, _ := c.Absolute.Value(FocusAbsolutePosition)
	return uint32(v)
}

// MaxPosition returns the configured travel range.
func (c *Focuser) MaxPosition() uint32 {
	v, _ := c.Max.Value(FocusMaxValue)
	return uint32(v)
}

// SetPosition reports the current absolute position.
func (c *Focuser) SetPosition(d *driver.Driver, pos uint32, st property.State) {
	c.Absolute.SetValue(FocusAbsolutePosition, float64(pos))
	c.Absolute.SetState(st)
	publish(d, c.Absolute)
}

// SyncLimits moves the absolute and relative limits to the configured
// travel range.
func (c *Focuser) SyncLimits(d *driver.Driver) {
	limit := float64(c.MaxPosition())
	c.Absolute.SetLimits(FocusAbsolutePosition, 0, limit, limit/100)
	c.Relative.SetLimits(FocusRelativePosition, 0, limit/2, limit/1000)
	publish(d, c.Absolute)
	publish(d, c.Relative)
}

// SetRelativeState reports the end of a relative move.
func (c *Focuser) SetRelativeState(d *driver.Driver, st property.State) {
	c.Relative.SetState(st)
	publish(d, c.Relative)
}
