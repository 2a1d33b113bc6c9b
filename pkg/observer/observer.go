// Package observer holds the collaborators that receive property
// broadcasts: a fan-out, a logger and an MQTT bridge.
package observer

import (
	log "github.com/sirupsen/logrus"

	"driverkit/pkg/property"
)

// Fanout forwards every broadcast to each of its broadcasters in order.
type Fanout []property.Broadcaster

func NewFanout(bs ...property.Broadcaster) Fanout {
	var f Fanout
	for _, b := range bs {
		if b != nil {
			f = append(f, b)
		}
	}
	return f
}

func (f Fanout) Define(s property.Snapshot) {
	for _, b := range f {
		b.Define(s)
	}
}

func (f Fanout) Update(s property.Snapshot) {
	for _, b := range f {
		b.Update(s)
	}
}

func (f Fanout) Delete(device, name string) {
	for _, b := range f {
		b.Delete(device, name)
	}
}

func (f Fanout) Message(device, msg string) {
	for _, b := range f {
		b.Message(device, msg)
	}
}

// Logger writes broadcasts to a logrus logger. Messages are logged at info
// level, property traffic at debug level.
type Logger struct {
	logger log.FieldLogger
}

func NewLogger(logger log.FieldLogger) *Logger {
	return &Logger{logger: logger.WithField("component", "observer")}
}

func (l *Logger) Define(s property.Snapshot) {
	l.logger.WithField("device", s.Device).Debugf("def %s %s", s.Name, s.State)
}

func (l *Logger) Update(s property.Snapshot) {
	l.logger.WithField("device", s.Device).Debugf("set %s %s", s.Name, s.State)
}

func (l *Logger) Delete(device, name string) {
	l.logger.WithField("device", device).Debugf("del %s", name)
}

func (l *Logger) Message(device, msg string) {
	l.logger.WithField("device", device).Info(msg)
}
