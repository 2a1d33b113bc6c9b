package capability

import (
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	DomePark = "DOME_PARK"
	CapPark  = "CAP_PARK"
	Park     = "PARK"
	Unpark   = "UNPARK"
)

// Parker parks and unparks a device.
type Parker interface {
	Park(d *driver.Driver, park bool) (property.State, error)
}

// Parking publishes a PARK/UNPARK switch. Domes and dust caps use it under
// different vector names.
type Parking struct {
	parker Parker
	name   string
	label  string
	iface  driver.Interface
	Vector *property.SwitchVector
}

func NewDomeParking(p Parker) *Parking {
	return &Parking{parker: p, name: DomePark, label: "Parking", iface: driver.InterfaceDome}
}

func NewCapParking(p Parker) *Parking {
	return &Parking{parker: p, name: CapPark, label: "Dust Cap", iface: driver.InterfaceDustCap}
}

func (c *Parking) Interface() driver.Interface { return c.iface }

func (c *Parking) Install(d *driver.Driver) error {
	var err error
	c.Vector, err = property.NewSwitchVector(
		property.Meta{Name: c.name, Label: c.label, Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.OneOfMany,
		property.Switch{Name: Park, Label: "Park"},
		property.Switch{Name: Unpark, Label: "Unpark", On: true},
	)
	if err != nil {
		return err
	}
	return d.Registry().Register(c.Vector, property.WhileConnected, func(property.Vector) error {
		park := c.Vector.IsOn(Park)
		if park {
			d.Logger().Info("Parking")
		} else {
			d.Logger().Info("Unparking")
		}
		st, err := c.parker.Park(d, park)
		return settle(c.Vector, st, err)
	})
}

// Parked reports whether the last accepted request was PARK.
func (c *Parking) Parked() bool {
	return c.Vector.IsOn(Park)
}

// SetState reports the end of a park or unpark movement.
func (c *Parking) SetState(d *driver.Driver, st property.State) {
	c.Vector.SetState(st)
	publish(d, c.Vector)
}
