package capability

import (
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	FlatLightControl        = "FLAT_LIGHT_CONTROL"
	FlatLightOn             = "FLAT_LIGHT_ON"
	FlatLightOff            = "FLAT_LIGHT_OFF"
	FlatLightIntensity      = "FLAT_LIGHT_INTENSITY"
	FlatLightIntensityValue = "FLAT_LIGHT_INTENSITY_VALUE"

	MaxLightIntensity = 255
)

// LightController switches the panel and sets its brightness.
type LightController interface {
	EnableLight(d *driver.Driver, on bool) error
	SetLightIntensity(d *driver.Driver, value uint16) error
}

// LightBox publishes the flat panel controls.
type LightBox struct {
	controller LightController
	Control    *property.SwitchVector
	Intensity  *property.NumberVector
}

func NewLightBox(lc LightController) *LightBox {
	return &LightBox{controller: lc}
}

func (c *LightBox) Interface() driver.Interface { return driver.InterfaceLightBox }

func (c *LightBox) Install(d *driver.Driver) error {
	var err error
	c.Control, err = property.NewSwitchVector(
		property.Meta{Name: FlatLightControl, Label: "Flat Light", Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.OneOfMany,
		property.Switch{Name: FlatLightOn, Label: "On"},
		property.Switch{Name: FlatLightOff, Label: "Off", On: true},
	)
	if err != nil {
		return err
	}

	// Intensities outside 0..255 are clamped.
	c.Intensity, err = property.NewNumberVector(
		property.Meta{Name: FlatLightIntensity, Label: "Brightness", Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle, Persist: true},
		property.Clamp,
		property.Number{Name: FlatLightIntensityValue, Label: "Value", Format: "%.f", Min: 0, Max: MaxLightIntensity, Step: 1},
	)
	if err != nil {
		return err
	}

	reg := d.Registry()
	if err := reg.Register(c.Control, property.WhileConnected, func(property.Vector) error {
		return c.controller.EnableLight(d, c.Control.IsOn(FlatLightOn))
	}); err != nil {
		return err
	}
	return reg.Register(c.Intensity, property.WhileConnected, func(property.Vector) error {
		return c.controller.SetLightIntensity(d, c.Level())
	})
}

// On reports whether the panel was switched on.
func (c *LightBox) On() bool {
	return c.Control.IsOn(FlatLightOn)
}

// Level returns the requested brightness.
func (c *LightBox) Level() uint16 {
	v, _ := c.Intensity.Value(FlatLightIntensityValue)
	return uint16(v)
}
