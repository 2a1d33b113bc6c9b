// Package poll drives periodic hardware polling with a task that must
// request its own next run.
package poll

import (
	"sync"
	"time"
)

// Timer is a pending call that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules calls. SystemClock uses the runtime timers; tests use
// polltest.Clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Task is one polling step. It keeps polling alive by calling Next on the
// scheduler before returning.
type Task func()

type phase int

const (
	idle phase = iota
	pending
	firing
)

// Scheduler holds at most one pending timer. Firings are handed to
// dispatch, which runs them on the driver's thread of control.
type Scheduler struct {
	clock    Clock
	dispatch func(func())

	mu    sync.Mutex
	task  Task
	timer Timer
	phase phase
	gen   uint64
}

// New returns a scheduler. A nil dispatch runs firings on the timer
// goroutine.
func New(clock Clock, dispatch func(func())) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Scheduler{clock: clock, dispatch: dispatch}
}

// Arm cancels any pending run and schedules task after interval.
func (s *Scheduler) Arm(interval time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.task = task
	s.scheduleLocked(interval)
}

// Next schedules the armed task again after interval. It is honored only
// from within the running task or while a run is pending, and returns false
// otherwise.
func (s *Scheduler) Next(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case firing:
		s.scheduleLocked(interval)
		return true
	case pending:
		s.stopLocked()
		s.scheduleLocked(interval)
		return true
	default:
		return false
	}
}

// Disarm cancels the pending run, if any. Calling it from within the task
// also drops a Next requested earlier in the same run.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.task = nil
}

// Armed reports whether a run is pending or executing.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != idle
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.phase = idle
}

func (s *Scheduler) scheduleLocked(interval time.Duration) {
	gen := s.gen
	s.phase = pending
	s.timer = s.clock.AfterFunc(interval, func() {
		s.dispatch(func() { s.fire(gen) })
	})
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != pending || s.task == nil {
		s.mu.Unlock()
		return
	}
	task := s.task
	s.timer = nil
	s.phase = firing
	s.mu.Unlock()

	task()

	s.mu.Lock()
	if s.phase == firing && s.gen == gen {
		s.phase = idle
	}
	s.mu.Unlock()
}
