package capability_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/drivers/driverstest"
	"driverkit/pkg/property"
)

// rig is a device made of whatever capabilities a test installs, backed by
// hardware that records calls and answers with fixed results.
type rig struct {
	caps  []driver.Capability
	state property.State
	err   error
	calls []string
}

func (r *rig) DefaultName() string { return "Rig" }
func (r *rig) Handshake(*driver.Driver) error { return nil }
func (r *rig) InitProperties(d *driver.Driver) error { return d.AddCapabilities(r.caps...) }

func (r *rig) record(call string) (property.State, error) {
	r.calls = append(r.calls, call)
	return r.state, r.err
}

func (r *rig) MoveDome(_ *driver.Driver, az float64) (property.State, error) {
	return r.record("move")
}

func (r *rig) AbortDome(*driver.Driver) error {
	_, err := r.record("abort")
	return err
}

func (r *rig) Park(_ *driver.Driver, park bool) (property.State, error) {
	if park {
		return r.record("park")
	}
	return r.record("unpark")
}

func (r *rig) SelectFilter(_ *driver.Driver, slot int) (property.State, error) {
	return r.record("select")
}

func newRig(t *testing.T, st property.State, err error, build func(r *rig) []driver.Capability) (*rig, *driverstest.Fixture) {
	t.Helper()
	r := &rig{state: st, err: err}
	r.caps = build(r)
	f := driverstest.New(t, r, nil)
	f.Connect(t)
	return r, f
}

func TestInterfacesAreCombined(t *testing.T) {
	r := &rig{}
	r.caps = []driver.Capability{capability.NewDomeMotion(r), capability.NewDomeParking(r), capability.NewCapParking(r)}
	f := driverstest.New(t, r, nil)
	assert.Equal(t, driver.InterfaceDome|driver.InterfaceDustCap, f.Driver.Interfaces())
}

func TestVectorsAreWithdrawnOnDisconnect(t *testing.T) {
	_, f := newRig(t, property.StateOk, nil, func(r *rig) []driver.Capability {
		return []driver.Capability{capability.NewDomeMotion(r)}
	})
	reg := f.Driver.Registry()
	assert.True(t, reg.Published(capability.DomeAbsPosition))
	assert.True(t, reg.Published(capability.DomeAbortMotion))

	require.NoError(t, f.Driver.Disconnect())
	assert.False(t, reg.Published(capability.DomeAbsPosition))
	assert.False(t, reg.Published(capability.DomeAbortMotion))
}

func TestHardwareStateIsApplied(t *testing.T) {
	tests := []struct {
		name  string
		state property.State
	}{
		{"Busy", property.StateBusy},
		{"Ok", property.StateOk},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, f := newRig(t, tc.state, nil, func(r *rig) []driver.Capability {
				return []driver.Capability{capability.NewDomeParking(r)}
			})
			_, err := f.Switch(capability.DomePark, capability.Park)
			require.NoError(t, err)
			assert.Equal(t, []string{"park"}, r.calls)
			assert.Equal(t, tc.state, f.Last(t, capability.DomePark).State)
		})
	}
}

func TestNotImplementedRollsBack(t *testing.T) {
	r, f := newRig(t, property.StateAlert, capability.ErrNotImplemented, func(r *rig) []driver.Capability {
		return []driver.Capability{capability.NewCapParking(r)}
	})

	_, err := f.Switch(capability.CapPark, capability.Park)
	assert.ErrorIs(t, err, capability.ErrNotImplemented)
	assert.Equal(t, []string{"park"}, r.calls)

	last := f.Last(t, capability.CapPark)
	assert.Equal(t, property.StateAlert, last.State)
	assert.Equal(t, false, driverstest.Value(t, last, capability.Park))
	assert.Equal(t, true, driverstest.Value(t, last, capability.Unpark))
}

func TestAbortResetsSwitch(t *testing.T) {
	r, f := newRig(t, property.StateBusy, nil, func(r *rig) []driver.Capability {
		return []driver.Capability{capability.NewDomeMotion(r)}
	})

	_, err := f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 90)
	require.NoError(t, err)
	require.Equal(t, property.StateBusy, f.Last(t, capability.DomeAbsPosition).State)

	_, err = f.Switch(capability.DomeAbortMotion, capability.Abort)
	require.NoError(t, err)
	assert.Equal(t, []string{"move", "abort"}, r.calls)
	assert.Equal(t, property.StateIdle, f.Last(t, capability.DomeAbsPosition).State)

	abort := f.Last(t, capability.DomeAbortMotion)
	assert.Equal(t, property.StateOk, abort.State)
	assert.Equal(t, false, driverstest.Value(t, abort, capability.Abort))
}

func TestAbortFailure(t *testing.T) {
	boom := errors.New("boom")
	_, f := newRig(t, property.StateOk, boom, func(r *rig) []driver.Capability {
		return []driver.Capability{capability.NewDomeMotion(r)}
	})

	_, err := f.Switch(capability.DomeAbortMotion, capability.Abort)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, property.StateAlert, f.Last(t, capability.DomeAbortMotion).State)
}

func TestDomeAzimuthIsClamped(t *testing.T) {
	_, f := newRig(t, property.StateOk, nil, func(r *rig) []driver.Capability {
		return []driver.Capability{capability.NewDomeMotion(r)}
	})

	_, err := f.Number(capability.DomeAbsPosition, capability.DomeAbsolutePosition, 400)
	require.NoError(t, err)
	assert.Equal(t, 360.0, driverstest.Value(t, f.Last(t, capability.DomeAbsPosition), capability.DomeAbsolutePosition))
}

func TestFilterWheelNeedsSlots(t *testing.T) {
	r := &rig{}
	r.caps = []driver.Capability{capability.NewFilterWheel(r, 0)}
	_, err := driver.New(r, driver.Options{Broadcaster: &nopBroadcaster{}})
	assert.Error(t, err)
}

func TestFilterNames(t *testing.T) {
	var wheel *capability.FilterWheel
	_, f := newRig(t, property.StateOk, nil, func(r *rig) []driver.Capability {
		wheel = capability.NewFilterWheel(r, 5)
		return []driver.Capability{wheel}
	})

	assert.Equal(t, "FILTER_SLOT_NAME_3", capability.FilterSlotName(3))
	assert.Equal(t, "Filter_3", wheel.NameOf(3))
	assert.Equal(t, 1, wheel.Current())

	_, err := f.Number(capability.FilterSlot, capability.FilterSlotValue, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, wheel.Current())
}

type nopBroadcaster struct{}

func (nopBroadcaster) Define(property.Snapshot) {}
func (nopBroadcaster) Update(property.Snapshot) {}
func (nopBroadcaster) Delete(string, string) {}
func (nopBroadcaster) Message(string, string) {}
