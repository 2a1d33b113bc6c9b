// Package lightbox is a flat panel driver.
package lightbox

import (
	"fmt"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
)

const defaultName = "Dummy Lightbox"

type LightBox struct {
	box *capability.LightBox

	lit   bool
	level uint16
}

func New() *LightBox {
	l := &LightBox{}
	l.box = capability.NewLightBox(l)
	return l
}

func (l *LightBox) DefaultName() string { return defaultName }

func (l *LightBox) InitProperties(d *driver.Driver) error {
	if err := d.AddCapabilities(l.box); err != nil {
		return err
	}
	d.SetInterface(driver.InterfaceAux)
	return nil
}

func (l *LightBox) Handshake(d *driver.Driver) error {
	if d.Simulated() {
		d.Message(fmt.Sprintf("Connected successfully to simulated %s.", d.Name()))
	}
	return nil
}

func (l *LightBox) TimerHit(d *driver.Driver) error {
	d.SetTimer(d.PollPeriod())
	return nil
}

func (l *LightBox) EnableLight(d *driver.Driver, on bool) error {
	d.Logger().Infof("EnableLightBox: %t", on)
	if !d.Simulated() {
		return capability.ErrNotImplemented
	}
	l.lit = on
	return nil
}

func (l *LightBox) SetLightIntensity(d *driver.Driver, value uint16) error {
	d.Logger().Infof("SetLightBoxBrightness: %d", value)
	if !d.Simulated() {
		return capability.ErrNotImplemented
	}
	l.level = value
	return nil
}

// Lit reports whether the simulated panel is on.
func (l *LightBox) Lit() bool {
	return l.lit
}

// Level returns the simulated panel brightness.
func (l *LightBox) Level() uint16 {
	return l.level
}
