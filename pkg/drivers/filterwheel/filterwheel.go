// Package filterwheel is a filter wheel driver. In simulation a slot
// change completes on the next poll.
package filterwheel

import (
	"fmt"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	defaultName = "Dummy FilterWheel"
	Slots       = 8
)

type FilterWheel struct {
	wheel *capability.FilterWheel

	current int
	target  int
}

func New() *FilterWheel {
	w := &FilterWheel{current: 1}
	w.wheel = capability.NewFilterWheel(w, Slots)
	return w
}

func (w *FilterWheel) DefaultName() string { return defaultName }

func (w *FilterWheel) InitProperties(d *driver.Driver) error {
	return d.AddCapabilities(w.wheel)
}

func (w *FilterWheel) Handshake(d *driver.Driver) error {
	if d.Simulated() {
		d.Message(fmt.Sprintf("Connected successfully to simulated %s.", d.Name()))
	}
	return nil
}

func (w *FilterWheel) TimerHit(d *driver.Driver) error {
	defer d.SetTimer(d.PollPeriod())

	if w.target == 0 {
		return nil
	}
	w.current, w.target = w.target, 0
	d.Logger().Infof("Filter %d (%s) in place", w.current, w.wheel.NameOf(w.current))
	w.wheel.SelectDone(d, w.current)
	return nil
}

func (w *FilterWheel) SelectFilter(d *driver.Driver, slot int) (property.State, error) {
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}
	if slot == w.current {
		return property.StateOk, nil
	}
	w.target = slot
	return property.StateBusy, nil
}

// Current returns the slot in the light path, starting at 1.
func (w *FilterWheel) Current() int {
	return w.current
}
