package observer_test

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"driverkit/pkg/observer"
	"driverkit/pkg/observer/observertest"
	"driverkit/pkg/property"
)

func TestFanout(t *testing.T) {
	a, b := &observertest.Recorder{}, &observertest.Recorder{}
	f := observer.NewFanout(a, nil, b)
	assert.Len(t, f, 2)

	s := property.Snapshot{Device: "d", Name: "X"}
	f.Define(s)
	f.Update(s)
	f.Delete("d", "X")
	f.Message("d", "hi")

	for _, r := range []*observertest.Recorder{a, b} {
		assert.Equal(t, 1, r.Count(observertest.OpDefine, "X"))
		assert.Equal(t, 1, r.Count(observertest.OpUpdate, "X"))
		assert.Equal(t, 1, r.Count(observertest.OpDelete, "X"))
		assert.Equal(t, []string{"hi"}, r.Messages())
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := log.New()
	l.SetOutput(&buf)
	l.SetLevel(log.InfoLevel)

	o := observer.NewLogger(l)
	o.Update(property.Snapshot{Device: "d", Name: "X"})
	assert.Empty(t, buf.String())

	o.Message("Dummy Dome", "Dummy Dome is online")
	assert.Contains(t, buf.String(), "Dummy Dome is online")
	assert.Contains(t, buf.String(), "device=\"Dummy Dome\"")
}
