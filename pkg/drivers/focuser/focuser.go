// Package focuser is an absolute and relative focuser driver. In
// simulation the drawtube travels StepsPerPoll ticks per poll.
package focuser

import (
	"fmt"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	defaultName  = "Dummy Focuser"
	StepsPerPoll = 2500
)

type Focuser struct {
	focus *capability.Focuser

	position uint32
	target   uint32
	moving   bool
}

func New() *Focuser {
	f := &Focuser{}
	f.focus = capability.NewFocuser(f)
	return f
}

func (f *Focuser) DefaultName() string { return defaultName }

func (f *Focuser) InitProperties(d *driver.Driver) error {
	return d.AddCapabilities(f.focus)
}

func (f *Focuser) Handshake(d *driver.Driver) error {
	if d.Simulated() {
		d.Message(fmt.Sprintf("Connected successfully to simulated %s.", d.Name()))
	}
	return nil
}

func (f *Focuser) UpdateProperties(d *driver.Driver, connected bool) error {
	if !connected {
		f.moving = false
		return nil
	}
	f.focus.SyncLimits(d)
	f.focus.SetPosition(d, f.position, property.StateIdle)
	return nil
}

func (f *Focuser) TimerHit(d *driver.Driver) error {
	defer d.SetTimer(d.PollPeriod())

	if !d.Simulated() || !f.moving {
		return nil
	}

	switch {
	case f.target > f.position+StepsPerPoll:
		f.position += StepsPerPoll
	case f.target+StepsPerPoll < f.position:
		f.position -= StepsPerPoll
	default:
		f.position = f.target
	}

	if f.position != f.target {
		f.focus.SetPosition(d, f.position, property.StateBusy)
		return nil
	}
	f.moving = false
	d.Logger().Infof("Focuser reached %d", f.position)
	f.focus.SetPosition(d, f.position, property.StateOk)
	if f.focus.Relative.Meta().State == property.StateBusy {
		f.focus.SetRelativeState(d, property.StateOk)
	}
	return nil
}

func (f *Focuser) MoveAbsFocuser(d *driver.Driver, target uint32) (property.State, error) {
	d.Logger().Infof("MoveAbsFocuser: %d", target)
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}
	return f.moveTo(target), nil
}

func (f *Focuser) MoveRelFocuser(d *driver.Driver, dir capability.FocusDirection, ticks uint32) (property.State, error) {
	d.Logger().Infof("MoveRelFocuser: %s %d", dir, ticks)
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}

	target := f.position
	if dir == capability.Inward {
		if ticks > target {
			target = 0
		} else {
			target -= ticks
		}
	} else {
		target += ticks
		if limit := f.focus.MaxPosition(); target > limit {
			target = limit
		}
	}

	st := f.moveTo(target)
	if st == property.StateBusy {
		f.focus.SetPosition(d, f.position, property.StateBusy)
	}
	return st, nil
}

func (f *Focuser) moveTo(target uint32) property.State {
	f.target = target
	f.moving = target != f.position
	if f.moving {
		return property.StateBusy
	}
	return property.StateOk
}

func (f *Focuser) AbortFocuser(d *driver.Driver) error {
	d.Logger().Info("AbortFocuser")
	if !d.Simulated() {
		return capability.ErrNotImplemented
	}
	f.moving = false
	return nil
}

// Position returns the simulated drawtube position.
func (f *Focuser) Position() uint32 {
	return f.position
}
