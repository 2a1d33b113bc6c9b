// Package capability holds the optional device features a driver can
// compose: dome motion, shutter, parking, focuser motion, filter selection,
// light box and dust cap. Each capability owns its vectors and calls a
// small hardware interface implemented by the concrete driver.
package capability

import (
	"errors"

	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

// ErrNotImplemented is returned by hardware calls the device cannot perform.
var ErrNotImplemented = errors.New("not implemented")

// Abort is the element name of every abort switch.
const Abort = "ABORT"

type stateSetter interface {
	SetState(s property.State)
}

// settle applies the outcome of a hardware call to the vector that
// triggered it. A non-nil error leaves the state to the registry, which
// rolls the update back.
func settle(v stateSetter, st property.State, err error) error {
	if err != nil {
		return err
	}
	v.SetState(st)
	return nil
}

// publish re-broadcasts v if it is currently published.
func publish(d *driver.Driver, v property.Vector) {
	name := v.Meta().Name
	if d.Registry().Published(name) {
		d.Registry().Update(name)
	}
}

func newAbortVector(name, label, group string) (*property.SwitchVector, error) {
	return property.NewSwitchVector(
		property.Meta{Name: name, Label: label, Group: group, Perm: property.ReadWrite, State: property.StateIdle},
		property.AtMostOne,
		property.Switch{Name: Abort, Label: "Abort"},
	)
}
