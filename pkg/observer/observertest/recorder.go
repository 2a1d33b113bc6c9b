// Package observertest provides an in-memory observer for tests.
package observertest

import (
	"sync"

	"driverkit/pkg/property"
)

const (
	OpDefine  = "define"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpMessage = "message"
)

// Event is one recorded broadcast.
type Event struct {
	Op       string
	Device   string
	Name     string
	Message  string
	Snapshot property.Snapshot
}

// Recorder implements property.Broadcaster and keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Define(s property.Snapshot) {
	r.add(Event{Op: OpDefine, Device: s.Device, Name: s.Name, Snapshot: s})
}

func (r *Recorder) Update(s property.Snapshot) {
	r.add(Event{Op: OpUpdate, Device: s.Device, Name: s.Name, Snapshot: s})
}

func (r *Recorder) Delete(device, name string) {
	r.add(Event{Op: OpDelete, Device: device, Name: name})
}

func (r *Recorder) Message(device, msg string) {
	r.add(Event{Op: OpMessage, Device: device, Message: msg})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Snapshots returns the snapshots recorded for op and name, oldest first.
func (r *Recorder) Snapshots(op, name string) []property.Snapshot {
	var out []property.Snapshot
	for _, e := range r.Events() {
		if e.Op == op && e.Name == name {
			out = append(out, e.Snapshot)
		}
	}
	return out
}

// Count returns how many events match op and name. An empty name matches
// every event with that op.
func (r *Recorder) Count(op, name string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Op == op && (name == "" || e.Name == name) {
			n++
		}
	}
	return n
}

// Names returns the vector names seen for op, in order.
func (r *Recorder) Names(op string) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Op == op {
			out = append(out, e.Name)
		}
	}
	return out
}

// Messages returns the recorded observer messages.
func (r *Recorder) Messages() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Op == OpMessage {
			out = append(out, e.Message)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
