package custom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/drivers/custom"
	"driverkit/pkg/drivers/driverstest"
	"driverkit/pkg/observer/observertest"
	"driverkit/pkg/property"
)

func TestSayHelloCounts(t *testing.T) {
	f := driverstest.New(t, custom.New(), nil)
	f.Connect(t)

	for i := 1; i <= 3; i++ {
		handled, err := f.Switch(custom.SayHello, custom.SayHelloDefault)
		require.NoError(t, err)
		require.True(t, handled)

		counts := f.Recorder.Snapshots(observertest.OpUpdate, custom.SayCount)
		require.Len(t, counts, i)
		assert.Equal(t, float64(i), driverstest.Value(t, counts[i-1], custom.SayCount))

		hellos := f.Recorder.Snapshots(observertest.OpUpdate, custom.SayHello)
		require.Len(t, hellos, i)
		assert.Equal(t, property.StateIdle, hellos[i-1].State)
		assert.Equal(t, false, driverstest.Value(t, hellos[i-1], custom.SayHelloDefault))
	}
	assert.Equal(t, []string{"Hello, world!", "Hello, world!", "Hello, world!"}, f.Recorder.Messages())
}

func TestSayCustomPhrase(t *testing.T) {
	dev := custom.New()
	f := driverstest.New(t, dev, nil)
	f.Connect(t)

	_, err := f.Text(custom.WhatToSay, custom.WhatToSay, "Clear skies")
	require.NoError(t, err)
	assert.Equal(t, "Clear skies", dev.Phrase())
	assert.Equal(t, property.StateIdle, f.Last(t, custom.WhatToSay).State)

	_, err = f.Switch(custom.SayHello, custom.SayHelloCustom)
	require.NoError(t, err)
	assert.Equal(t, []string{"Clear skies"}, f.Recorder.Messages())
	assert.Equal(t, 1, dev.Count())
}

func TestPhraseIsSavedOnEveryChange(t *testing.T) {
	f := driverstest.New(t, custom.New(), nil)
	f.Connect(t)

	_, err := f.Text(custom.WhatToSay, custom.WhatToSay, "Good evening")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Store.Saves())

	next := custom.New()
	driverstest.New(t, next, f.Store)
	assert.Equal(t, "Good evening", next.Phrase())
}

func TestCountIsReadOnly(t *testing.T) {
	f := driverstest.New(t, custom.New(), nil)
	f.Connect(t)

	_, err := f.Number(custom.SayCount, custom.SayCount, 42)
	assert.ErrorIs(t, err, property.ErrRejectedUpdate)
	assert.Equal(t, property.StateAlert, f.Last(t, custom.SayCount).State)
}

func TestVectorsFollowConnection(t *testing.T) {
	f := driverstest.New(t, custom.New(), nil)
	assert.False(t, f.Driver.Registry().Published(custom.SayHello))

	require.NoError(t, f.Driver.Connect(context.Background()))
	for _, name := range []string{custom.SayHello, custom.WhatToSay, custom.SayCount} {
		assert.True(t, f.Driver.Registry().Published(name), name)
	}
	assert.Contains(t, f.Recorder.Messages(), "Connected successfully to simulated My Custom Driver.")

	require.NoError(t, f.Driver.Disconnect())
	assert.False(t, f.Driver.Registry().Published(custom.SayCount))
	assert.Equal(t, 3, f.Recorder.Count(observertest.OpDelete, ""))
}
