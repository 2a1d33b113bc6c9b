// Package custom is a minimal driver: a hello switch, a saved phrase and a
// read-only counter of how many times the switch was pressed.
package custom

import (
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	SayHello        = "SAY_HELLO"
	SayHelloDefault = "SAY_HELLO_DEFAULT"
	SayHelloCustom  = "SAY_HELLO_CUSTOM"
	WhatToSay       = "WHAT_TO_SAY"
	SayCount        = "SAY_COUNT"

	DefaultPhrase = "Hello, custom world!"
	defaultName   = "My Custom Driver"
)

type Custom struct {
	hello *property.SwitchVector
	text  *property.TextVector
	count *property.NumberVector
}

func New() *Custom {
	return &Custom{}
}

func (c *Custom) DefaultName() string { return defaultName }

func (c *Custom) InitProperties(d *driver.Driver) error {
	var err error
	c.hello, err = property.NewSwitchVector(
		property.Meta{Name: SayHello, Label: "Hello Commands", Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.AtMostOne,
		property.Switch{Name: SayHelloDefault, Label: "Say Hello"},
		property.Switch{Name: SayHelloCustom, Label: "Say Custom"},
	)
	if err != nil {
		return err
	}

	c.text, err = property.NewTextVector(
		property.Meta{Name: WhatToSay, Label: "Got something to say?", Group: driver.MainControlTab, Perm: property.ReadWrite, State: property.StateIdle, Persist: true},
		property.Text{Name: WhatToSay, Label: "What to say?", Value: DefaultPhrase},
	)
	if err != nil {
		return err
	}

	c.count, err = property.NewNumberVector(
		property.Meta{Name: SayCount, Label: "Say Count", Group: driver.MainControlTab, Perm: property.ReadOnly, State: property.StateIdle},
		property.Clamp,
		property.Number{Name: SayCount, Label: "Count", Format: "%0.f"},
	)
	if err != nil {
		return err
	}

	d.SetInterface(driver.InterfaceGeneral)

	reg := d.Registry()
	if err := reg.Register(c.hello, property.WhileConnected, func(property.Vector) error {
		return c.sayHello(d)
	}); err != nil {
		return err
	}
	if err := reg.Register(c.text, property.WhileConnected, func(property.Vector) error {
		c.text.SetState(property.StateIdle)
		// The phrase is saved on every change, not only on CONFIG_SAVE.
		if err := d.SaveConfig(); err != nil {
			d.Logger().Warnf("Failed to save %s: %v", WhatToSay, err)
		}
		return nil
	}); err != nil {
		return err
	}
	return reg.Register(c.count, property.WhileConnected, nil)
}

func (c *Custom) sayHello(d *driver.Driver) error {
	switch c.hello.OnSwitch() {
	case SayHelloDefault:
		d.Logger().Info("Hello, world!")
		d.Message("Hello, world!")
	case SayHelloCustom:
		phrase := c.Phrase()
		d.Logger().Info(phrase)
		d.Message(phrase)
	}

	n, _ := c.count.Value(SayCount)
	if err := c.count.SetValue(SayCount, n+1); err != nil {
		return err
	}
	if err := d.Registry().Update(SayCount); err != nil {
		return err
	}

	c.hello.Reset()
	c.hello.SetState(property.StateIdle)
	return nil
}

func (c *Custom) Handshake(d *driver.Driver) error {
	if d.Simulated() {
		d.Message("Connected successfully to simulated " + d.Name() + ".")
	}
	return nil
}

func (c *Custom) TimerHit(d *driver.Driver) error {
	d.Logger().Debug("timer hit")
	d.SetTimer(d.PollPeriod())
	return nil
}

// Phrase returns the text said by SAY_HELLO_CUSTOM.
func (c *Custom) Phrase() string {
	s, _ := c.text.Value(WhatToSay)
	return s
}

// Count returns how many times SAY_HELLO was pressed.
func (c *Custom) Count() int {
	n, _ := c.count.Value(SayCount)
	return int(n)
}
