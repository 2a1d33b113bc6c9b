package capability

import (
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	DomeAbsPosition      = "ABS_DOME_POSITION"
	DomeAbsolutePosition = "DOME_ABSOLUTE_POSITION"
	DomeAbortMotion      = "DOME_ABORT_MOTION"

	DomeShutter   = "DOME_SHUTTER"
	ShutterOpen   = "SHUTTER_OPEN"
	ShutterClose  = "SHUTTER_CLOSE"
	DomeMotionTab = "Motion"
)

// DomeMover moves the dome in azimuth.
type DomeMover interface {
	// MoveDome starts a move to azimuth in degrees. It returns Busy when
	// the move completes later, Ok when it is already done.
	MoveDome(d *driver.Driver, azimuth float64) (property.State, error)
	AbortDome(d *driver.Driver) error
}

// DomeMotion publishes the dome azimuth and lets observers move it.
type DomeMotion struct {
	mover    DomeMover
	Position *property.NumberVector
	Abort    *property.SwitchVector
}

func NewDomeMotion(m DomeMover) *DomeMotion {
	return &DomeMotion{mover: m}
}

func (c *DomeMotion) Interface() driver.Interface { return driver.InterfaceDome }

func (c *DomeMotion) Install(d *driver.Driver) error {
	var err error
	// Azimuths outside 0..360 are clamped.
	c.Position, err = property.NewNumberVector(
		property.Meta{Name: DomeAbsPosition, Label: "Absolute Position", Group: DomeMotionTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.Clamp,
		property.Number{Name: DomeAbsolutePosition, Label: "Degrees", Format: "%6.2f", Min: 0, Max: 360, Step: 1},
	)
	if err != nil {
		return err
	}
	c.Abort, err = newAbortVector(DomeAbortMotion, "Abort Motion", DomeMotionTab)
	if err != nil {
		return err
	}

	reg := d.Registry()
	if err := reg.Register(c.Position, property.WhileConnected, func(property.Vector) error {
		az, _ := c.Position.Value(DomeAbsolutePosition)
		d.Logger().Infof("Moving dome to %.2f", az)
		st, err := c.mover.MoveDome(d, az)
		return settle(c.Position, st, err)
	}); err != nil {
		return err
	}
	return reg.Register(c.Abort, property.WhileConnected, func(property.Vector) error {
		err := c.mover.AbortDome(d)
		c.Abort.Reset()
		if err != nil {
			return err
		}
		if c.Position.Meta().State == property.StateBusy {
			c.Position.SetState(property.StateIdle)
			publish(d, c.Position)
		}
		return nil
	})
}

// SetPosition reports the current azimuth.
func (c *DomeMotion) SetPosition(d *driver.Driver, azimuth float64, st property.State) {
	c.Position.SetValue(DomeAbsolutePosition, azimuth)
	c.Position.SetState(st)
	publish(d, c.Position)
}

// ShutterController opens and closes the dome shutter.
type ShutterController interface {
	ControlShutter(d *driver.Driver, open bool) (property.State, error)
}

// Shutter publishes the shutter state.
type Shutter struct {
	controller ShutterController
	Vector     *property.SwitchVector
}

func NewShutter(sc ShutterController) *Shutter {
	return &Shutter{controller: sc}
}

func (c *Shutter) Interface() driver.Interface { return driver.InterfaceDome }

func (c *Shutter) Install(d *driver.Driver) error {
	var err error
	c.Vector, err = property.NewSwitchVector(
		property.Meta{Name: DomeShutter, Label: "Shutter", Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.OneOfMany,
		property.Switch{Name: ShutterOpen, Label: "Open"},
		property.Switch{Name: ShutterClose, Label: "Close", On: true},
	)
	if err != nil {
		return err
	}
	return d.Registry().Register(c.Vector, property.WhileConnected, func(property.Vector) error {
		open := c.Vector.IsOn(ShutterOpen)
		st, err := c.controller.ControlShutter(d, open)
		return settle(c.Vector, st, err)
	})
}

// SetState reports the end of a shutter movement.
func (c *Shutter) SetState(d *driver.Driver, st property.State) {
	c.Vector.SetState(st)
	publish(d, c.Vector)
}
