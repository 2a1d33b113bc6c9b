// Package dustcap is a motorized dust cap driver. In simulation the cap
// takes TravelPolls polls to open or close.
package dustcap

import (
	"fmt"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	defaultName = "Dummy Dustcap"
	TravelPolls = 2
)

type DustCap struct {
	parking *capability.Parking

	closed bool
	left   int
}

func New() *DustCap {
	c := &DustCap{}
	c.parking = capability.NewCapParking(c)
	return c
}

func (c *DustCap) DefaultName() string { return defaultName }

func (c *DustCap) InitProperties(d *driver.Driver) error {
	if err := d.AddCapabilities(c.parking); err != nil {
		return err
	}
	d.SetInterface(driver.InterfaceAux)
	return nil
}

func (c *DustCap) Handshake(d *driver.Driver) error {
	if d.Simulated() {
		d.Message(fmt.Sprintf("Connected successfully to simulated %s.", d.Name()))
	}
	return nil
}

func (c *DustCap) UpdateProperties(_ *driver.Driver, connected bool) error {
	if !connected {
		c.left = 0
	}
	return nil
}

func (c *DustCap) TimerHit(d *driver.Driver) error {
	defer d.SetTimer(d.PollPeriod())

	if c.left == 0 {
		return nil
	}
	c.left--
	if c.left == 0 {
		c.closed = c.parking.Parked()
		if c.closed {
			d.Logger().Info("Cap closed")
		} else {
			d.Logger().Info("Cap open")
		}
		c.parking.SetState(d, property.StateOk)
	}
	return nil
}

func (c *DustCap) Park(d *driver.Driver, park bool) (property.State, error) {
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}
	if park == c.closed && c.left == 0 {
		return property.StateOk, nil
	}
	c.left = TravelPolls
	return property.StateBusy, nil
}

// Closed reports whether the simulated cap covers the optics.
func (c *DustCap) Closed() bool {
	return c.closed
}
