// Package dome is a dome driver with azimuth motion, a shutter and parking.
// In simulation the dome turns SlewStep degrees per poll and the shutter
// takes ShutterPolls polls to travel.
package dome

import (
	"errors"
	"fmt"
	"math"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	defaultName = "Dummy Dome"

	SlewStep     = 10.0
	ShutterPolls = 3
	ParkAzimuth  = 0.0
)

var errParked = errors.New("dome is parked, unpark it before moving")

type Dome struct {
	motion  *capability.DomeMotion
	shutter *capability.Shutter
	park    *capability.Parking

	azimuth     float64
	target      float64
	slewing     bool
	parking     bool
	shutterLeft int
}

func New() *Dome {
	d := &Dome{}
	d.motion = capability.NewDomeMotion(d)
	d.shutter = capability.NewShutter(d)
	d.park = capability.NewDomeParking(d)
	return d
}

func (m *Dome) DefaultName() string { return defaultName }

func (m *Dome) InitProperties(d *driver.Driver) error {
	return d.AddCapabilities(m.motion, m.shutter, m.park)
}

func (m *Dome) Handshake(d *driver.Driver) error {
	if d.Simulated() {
		d.Message(fmt.Sprintf("Connected successfully to simulated %s.", d.Name()))
	}
	return nil
}

func (m *Dome) UpdateProperties(d *driver.Driver, connected bool) error {
	if !connected {
		m.slewing = false
		m.parking = false
		m.shutterLeft = 0
		return nil
	}
	m.motion.SetPosition(d, m.azimuth, property.StateIdle)
	return nil
}

func (m *Dome) TimerHit(d *driver.Driver) error {
	defer d.SetTimer(d.PollPeriod())

	if !d.Simulated() {
		return nil
	}

	if m.slewing {
		m.azimuth = step(m.azimuth, m.target, SlewStep)
		if m.azimuth == m.target {
			m.slewing = false
			m.motion.SetPosition(d, m.azimuth, property.StateOk)
			if m.parking {
				m.parking = false
				d.Logger().Info("Dome parked")
				m.park.SetState(d, property.StateOk)
			}
		} else {
			m.motion.SetPosition(d, m.azimuth, property.StateBusy)
		}
	}

	if m.shutterLeft > 0 {
		m.shutterLeft--
		if m.shutterLeft == 0 {
			d.Logger().Info("Shutter movement done")
			m.shutter.SetState(d, property.StateOk)
		}
	}
	return nil
}

func (m *Dome) MoveDome(d *driver.Driver, azimuth float64) (property.State, error) {
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}
	if m.park.Parked() {
		return property.StateAlert, errParked
	}
	return m.slewTo(azimuth), nil
}

func (m *Dome) slewTo(azimuth float64) property.State {
	m.target = normalizeAngle(azimuth)
	if m.target == m.azimuth {
		m.slewing = false
		return property.StateOk
	}
	m.slewing = true
	return property.StateBusy
}

func (m *Dome) AbortDome(d *driver.Driver) error {
	if !d.Simulated() {
		return capability.ErrNotImplemented
	}
	d.Logger().Info("Dome motion aborted")
	m.slewing = false
	if m.parking {
		m.parking = false
		m.park.SetState(d, property.StateIdle)
	}
	return nil
}

func (m *Dome) ControlShutter(d *driver.Driver, open bool) (property.State, error) {
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}
	if open {
		d.Logger().Info("Opening shutter")
	} else {
		d.Logger().Info("Closing shutter")
	}
	m.shutterLeft = ShutterPolls
	return property.StateBusy, nil
}

func (m *Dome) Park(d *driver.Driver, park bool) (property.State, error) {
	if !d.Simulated() {
		return property.StateAlert, capability.ErrNotImplemented
	}
	if !park {
		m.parking = false
		return property.StateOk, nil
	}
	st := m.slewTo(ParkAzimuth)
	m.parking = st == property.StateBusy
	if m.parking {
		m.motion.SetPosition(d, m.azimuth, property.StateBusy)
	}
	return st, nil
}

// Azimuth returns the current simulated azimuth.
func (m *Dome) Azimuth() float64 {
	return m.azimuth
}

// step moves from toward to by at most size degrees along the shorter way
// around the circle.
func step(from, to, size float64) float64 {
	delta := normalizeAngle(to - from)
	if delta > 180 {
		delta -= 360
	}
	if math.Abs(delta) <= size {
		return to
	}
	return normalizeAngle(from + math.Copysign(size, delta))
}

// normalizeAngle maps any angle in degrees to [0, 360).
func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
