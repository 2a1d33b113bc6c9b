// Package driverstest builds simulated drivers for tests.
package driverstest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/connection"
	"driverkit/pkg/driver"
	"driverkit/pkg/observer/observertest"
	"driverkit/pkg/poll/polltest"
	"driverkit/pkg/property"
)

// Store keeps saved settings in memory.
type Store struct {
	mu    sync.Mutex
	saved map[string][]property.Setting
	saves int
}

func (s *Store) SaveProperties(device string, settings []property.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]property.Setting)
	}
	s.saved[device] = append([]property.Setting(nil), settings...)
	s.saves++
	return nil
}

func (s *Store) LoadProperties(device string) ([]property.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[device], nil
}

// Saves returns how many times SaveProperties was called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Fixture is a simulated driver wired to a recorder and a fake clock.
type Fixture struct {
	Driver   *driver.Driver
	Recorder *observertest.Recorder
	Clock    *polltest.Clock
	Store    *Store
}

// New builds a simulated driver for dev with a one second poll period.
// A nil store gets a fresh one.
func New(t *testing.T, dev driver.Device, store *Store) *Fixture {
	t.Helper()
	l := log.New()
	l.SetOutput(io.Discard)

	if store == nil {
		store = &Store{}
	}
	f := &Fixture{
		Recorder: &observertest.Recorder{},
		Clock:    &polltest.Clock{},
		Store:    store,
	}
	drv, err := driver.New(dev, driver.Options{
		Connection:  connection.DefaultConfig(),
		Simulation:  true,
		PollPeriod:  time.Second,
		Broadcaster: f.Recorder,
		Store:       f.Store,
		Clock:       f.Clock,
		Logger:      l,
	})
	require.NoError(t, err)
	require.NoError(t, drv.GetProperties())
	f.Driver = drv
	return f
}

// Connect connects the driver and clears the recorder.
func (f *Fixture) Connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.Driver.Connect(context.Background()))
	f.Recorder.Reset()
}

// Switch routes a request turning on the named switches.
func (f *Fixture) Switch(vector string, on ...string) (bool, error) {
	req := property.Request{Device: f.Driver.Name(), Name: vector}
	for _, name := range on {
		req.Switches = append(req.Switches, property.SwitchValue{Name: name, On: true})
	}
	return f.Driver.Route(req)
}

// Number routes a request setting one number element.
func (f *Fixture) Number(vector, element string, value float64) (bool, error) {
	return f.Driver.Route(property.Request{
		Device:  f.Driver.Name(),
		Name:    vector,
		Numbers: []property.NumberValue{{Name: element, Value: value}},
	})
}

// Text routes a request setting one text element.
func (f *Fixture) Text(vector, element, value string) (bool, error) {
	return f.Driver.Route(property.Request{
		Device: f.Driver.Name(),
		Name:   vector,
		Texts:  []property.TextValue{{Name: element, Value: value}},
	})
}

// Last returns the latest update broadcast of name.
func (f *Fixture) Last(t *testing.T, name string) property.Snapshot {
	t.Helper()
	snaps := f.Recorder.Snapshots(observertest.OpUpdate, name)
	require.NotEmpty(t, snaps, "no update of %s", name)
	return snaps[len(snaps)-1]
}

// Value returns the value of element in s.
func Value(t *testing.T, s property.Snapshot, element string) any {
	t.Helper()
	e, ok := s.Element(element)
	require.True(t, ok, "no element %s in %s", element, s.Name)
	return e.Value
}
