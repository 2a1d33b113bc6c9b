// Package connectiontest provides in-memory transports for tests.
package connectiontest

import (
	"context"
	"sync"
	"time"

	"driverkit/pkg/connection"
)

// Port is a scripted connection.Port. Every write is passed to Reply and
// the returned bytes become readable. Reads with nothing pending behave like
// a serial read timeout and return 0, nil.
type Port struct {
	mu sync.Mutex

	// Reply produces the device answer to a write. Nil means no answer.
	Reply func(written []byte) []byte

	// WriteLimit truncates writes to that many bytes when positive.
	WriteLimit int
	WriteErr   error
	ReadErr    error

	pending  []byte
	written  [][]byte
	events   []string
	baud     int
	flushes  int
	closed   bool
	deadline time.Time
}

// Inject makes data readable as if the device had sent it unprompted.
func (p *Port) Inject(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, data...)
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		if p.ReadErr != nil {
			return 0, p.ReadErr
		}
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "write")
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	n := len(b)
	if p.WriteLimit > 0 && n > p.WriteLimit {
		n = p.WriteLimit
	}
	p.written = append(p.written, append([]byte(nil), b[:n]...))
	if p.Reply != nil && n == len(b) {
		p.pending = append(p.pending, p.Reply(b)...)
	}
	return n, nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "close")
	p.closed = true
	return nil
}

func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "flush")
	p.flushes++
	p.pending = nil
	return nil
}

func (p *Port) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	return nil
}

func (p *Port) SetBaudRate(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "baud")
	p.baud = baud
	return nil
}

// Written returns every payload written so far.
func (p *Port) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

// Events returns the order of write, flush, baud and close calls.
func (p *Port) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *Port) BaudRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud
}

func (p *Port) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Opener hands out Port on every open, or fails with Err.
type Opener struct {
	mu     sync.Mutex
	Port   *Port
	Err    error
	opened int
}

func (o *Opener) Open(_ context.Context, _ connection.Config) (connection.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Port, nil
}

// Opened returns how many times Open was called.
func (o *Opener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// Echo answers every command with the command itself.
func Echo(written []byte) []byte {
	return append([]byte(nil), written...)
}
