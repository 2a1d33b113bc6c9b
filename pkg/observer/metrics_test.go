package observer_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/observer"
	"driverkit/pkg/property"
)

func TestMetrics(t *testing.T) {
	m := observer.NewMetrics()

	m.Define(property.Snapshot{Device: "d", Name: "X"})
	m.Update(property.Snapshot{Device: "d", Name: "X", State: property.StateOk})
	m.Update(property.Snapshot{Device: "d", Name: "X", State: property.StateAlert})
	m.Delete("d", "X")
	m.Message("d", "hi")
	m.Message("e", "hi")

	n, err := testutil.GatherAndCount(m.Registry(), "driverkit_observer_broadcasts_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "one series per device and type")

	count, err := testutil.GatherAndCount(m.Registry(), "driverkit_observer_alerts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			key := f.GetName()
			for _, l := range metric.GetLabel() {
				key += "," + l.GetValue()
			}
			values[key] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, values["driverkit_observer_broadcasts_total,d,update"])
	assert.Equal(t, 1.0, values["driverkit_observer_broadcasts_total,d,define"])
	assert.Equal(t, 1.0, values["driverkit_observer_alerts_total,d,X"])
}
