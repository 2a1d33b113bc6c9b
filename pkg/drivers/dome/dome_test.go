package dome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/drivers/driverstest"
	"driverkit/pkg/observer/observertest"
	"driverkit/pkg/property"
)

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, 0.0, normalizeAngle(0.0))
	assert.Equal(t, 45.0, normalizeAngle(45.0))
	assert.Equal(t, 0.0, normalizeAngle(360.0))
	assert.Equal(t, 0.0, normalizeAngle(-360.0))
	assert.Equal(t, 10.0, normalizeAngle(370.0))
	assert.Equal(t, 330.0, normalizeAngle(-30.0))
	assert.Equal(t, 320.0, normalizeAngle(-400.0))
	assert.Equal(t, 85.0, normalizeAngle(3685.0))
	assert.Equal(t, 30.0, normalizeAngle(-3570.0))
}

func TestStep(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		expected float64
	}{
		{"Forward", 0, 45, 10},
		{"Backward", 45, 0, 35},
		{"Arrive", 40, 45, 45},
		{"Wrap forward", 355, 20, 5},
		{"Wrap backward", 5, 300, 355},
		{"Already there", 90, 90, 90},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, step(tc.from, tc.to, SlewStep))
		})
	}
}

func positions(t *testing.T, f *driverstest.Fixture) []float64 {
	var out []float64
	for _, s := range f.Recorder.Snapshots(observertest.OpUpdate, capability.DomeAbsPosition) {
		out = append(out, driverstest.Value(t, s, capability.DomeAbsolutePosition).(float64))
	}
	return out
}

func TestMoveDome(t *testing.T) {
	dev := New()
	f := driverstest.New(t, dev, nil)
	f.Connect(t)

	_, err := f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 45)
	require.NoError(t, err)
	assert.Equal(t, property.StateBusy, f.Last(t, capability.DomeAbsPosition).State)

	f.Clock.Advance(5 * time.Second)
	assert.Equal(t, []float64{45, 10, 20, 30, 40, 45}, positions(t, f))
	assert.Equal(t, property.StateOk, f.Last(t, capability.DomeAbsPosition).State)
	assert.Equal(t, 45.0, dev.Azimuth())

	f.Recorder.Reset()
	f.Clock.Advance(time.Second)
	assert.Zero(t, f.Recorder.Count(observertest.OpUpdate, capability.DomeAbsPosition))
}

func TestAbortDome(t *testing.T) {
	dev := New()
	f := driverstest.New(t, dev, nil)
	f.Connect(t)

	_, err := f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 90)
	require.NoError(t, err)
	f.Clock.Advance(2 * time.Second)

	_, err = f.Switch(capability.DomeAbortMotion, capability.Abort)
	require.NoError(t, err)
	assert.Equal(t, property.StateIdle, f.Last(t, capability.DomeAbsPosition).State)
	assert.Equal(t, false, driverstest.Value(t, f.Last(t, capability.DomeAbortMotion), capability.Abort))

	f.Clock.Advance(3 * time.Second)
	assert.Equal(t, 20.0, dev.Azimuth())
}

func TestShutter(t *testing.T) {
	f := driverstest.New(t, New(), nil)
	f.Connect(t)

	_, err := f.Switch(capability.DomeShutter, capability.ShutterOpen)
	require.NoError(t, err)
	assert.Equal(t, property.StateBusy, f.Last(t, capability.DomeShutter).State)

	f.Clock.Advance(2 * time.Second)
	assert.Equal(t, property.StateBusy, f.Last(t, capability.DomeShutter).State)

	f.Clock.Advance(time.Second)
	last := f.Last(t, capability.DomeShutter)
	assert.Equal(t, property.StateOk, last.State)
	assert.Equal(t, true, driverstest.Value(t, last, capability.ShutterOpen))
}

func TestParkBlocksMotion(t *testing.T) {
	dev := New()
	f := driverstest.New(t, dev, nil)
	f.Connect(t)

	_, err := f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 30)
	require.NoError(t, err)
	f.Clock.Advance(3 * time.Second)
	require.Equal(t, 30.0, dev.Azimuth())

	_, err = f.Switch(capability.DomePark, capability.Park)
	require.NoError(t, err)
	assert.Equal(t, property.StateBusy, f.Last(t, capability.DomePark).State)

	f.Clock.Advance(3 * time.Second)
	assert.Equal(t, property.StateOk, f.Last(t, capability.DomePark).State)
	assert.Equal(t, 0.0, dev.Azimuth())

	_, err = f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 90)
	assert.ErrorIs(t, err, errParked)
	assert.Equal(t, property.StateAlert, f.Last(t, capability.DomeAbsPosition).State)
	assert.Equal(t, 0.0, driverstest.Value(t, f.Last(t, capability.DomeAbsPosition), capability.DomeAbsolutePosition))

	_, err = f.Switch(capability.DomePark, capability.Unpark)
	require.NoError(t, err)
	_, err = f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 90)
	assert.NoError(t, err)
}

func TestInterface(t *testing.T) {
	f := driverstest.New(t, New(), nil)
	info := f.Driver.Registry().Snapshots()
	var iface any
	for _, s := range info {
		if s.Name == driver.DriverInfo {
			iface = driverstest.Value(t, s, driver.DriverInterface)
		}
	}
	assert.Equal(t, "32", iface)
}
