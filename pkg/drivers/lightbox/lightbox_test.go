package lightbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/capability"
	"driverkit/pkg/driver"
	"driverkit/pkg/drivers/driverstest"
	"driverkit/pkg/drivers/lightbox"
	"driverkit/pkg/property"
)

func TestLightControl(t *testing.T) {
	dev := lightbox.New()
	f := driverstest.New(t, dev, nil)
	f.Connect(t)

	_, err := f.Switch(capability.FlatLightControl, capability.FlatLightOn)
	require.NoError(t, err)
	assert.True(t, dev.Lit())
	assert.Equal(t, property.StateOk, f.Last(t, capability.FlatLightControl).State)

	_, err = f.Switch(capability.FlatLightControl, capability.FlatLightOff)
	require.NoError(t, err)
	assert.False(t, dev.Lit())
}

func TestLightControlNeedsOneSwitch(t *testing.T) {
	dev := lightbox.New()
	f := driverstest.New(t, dev, nil)
	f.Connect(t)

	_, err := f.Switch(capability.FlatLightControl, capability.FlatLightOn, capability.FlatLightOff)
	assert.ErrorIs(t, err, property.ErrRejectedUpdate)
	last := f.Last(t, capability.FlatLightControl)
	assert.Equal(t, property.StateAlert, last.State)
	assert.Equal(t, true, driverstest.Value(t, last, capability.FlatLightOff))
	assert.False(t, dev.Lit())
}

func TestIntensityIsClamped(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected uint16
	}{
		{"In range", 128, 128},
		{"Above max", 1000, capability.MaxLightIntensity},
		{"Below min", -5, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dev := lightbox.New()
			f := driverstest.New(t, dev, nil)
			f.Connect(t)

			_, err := f.Number(capability.FlatLightIntensity, capability.FlatLightIntensityValue, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, dev.Level())
			assert.Equal(t, float64(tc.expected), driverstest.Value(t, f.Last(t, capability.FlatLightIntensity), capability.FlatLightIntensityValue))
		})
	}
}

func TestInterface(t *testing.T) {
	f := driverstest.New(t, lightbox.New(), nil)
	assert.Equal(t, driver.InterfaceLightBox|driver.InterfaceAux, f.Driver.Interfaces())
}
