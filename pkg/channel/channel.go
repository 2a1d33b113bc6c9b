// Package channel runs framed command/response exchanges over an open
// transport: the payload is written as is and the answer is read up to a
// single terminator byte.
package channel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"driverkit/pkg/connection"
)

var (
	ErrWrite        = errors.New("write error")
	ErrReadTimeout  = errors.New("read timeout")
	ErrRead         = errors.New("read error")
	ErrInvalidState = errors.New("invalid channel state")
)

// SimulatedResponse is returned for every exchange on a simulated handle.
const SimulatedResponse = "OK"

// MaxResponse bounds the bytes read while waiting for the terminator.
const MaxResponse = 4096

// Channel performs one exchange at a time. A second Exchange while one is
// in flight fails with ErrInvalidState.
type Channel struct {
	busy   atomic.Bool
	logger log.FieldLogger
}

func New(logger log.FieldLogger) *Channel {
	return &Channel{logger: logger.WithField("component", "channel")}
}

// Exchange flushes stale input, writes payload and reads the answer up to
// terminator, which is stripped. It blocks for at most timeout while
// reading.
func (c *Channel) Exchange(h *connection.Handle, payload []byte, terminator byte, timeout time.Duration) ([]byte, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: exchange already in flight", ErrInvalidState)
	}
	defer c.busy.Store(false)

	if h == nil || h.Closed() {
		return nil, fmt.Errorf("%w: transport is not open", ErrInvalidState)
	}

	c.logger.Debugf("CMD <%s>", payload)

	if h.Simulated() {
		c.logger.Debugf("RES <%s>", SimulatedResponse)
		return []byte(SimulatedResponse), nil
	}

	port := h.Port()
	if err := port.Flush(); err != nil {
		c.logger.Warnf("Failed to flush input: %v", err)
	}

	n, err := port.Write(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if n != len(payload) {
		return nil, fmt.Errorf("%w: incomplete write: wrote %d of %d bytes", ErrWrite, n, len(payload))
	}

	resp, err := readFrame(port, terminator, time.Now().Add(timeout))
	if err != nil {
		return nil, err
	}

	c.logger.Debugf("RES <%s>", resp)
	return resp, nil
}

func readFrame(port connection.Port, terminator byte, deadline time.Time) ([]byte, error) {
	if err := port.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer port.SetReadDeadline(time.Time{})

	var resp []byte
	b := make([]byte, 1)
	for {
		n, err := port.Read(b)
		if n == 1 {
			if b[0] == terminator {
				return resp, nil
			}
			if len(resp) >= MaxResponse {
				return nil, fmt.Errorf("%w: no terminator within %d bytes", ErrRead, MaxResponse)
			}
			resp = append(resp, b[0])
			continue
		}

		switch {
		case err == nil:
			// A serial read with nothing to return has hit its timeout.
			return nil, fmt.Errorf("%w: got %q", ErrReadTimeout, resp)
		case isTimeout(err):
			return nil, fmt.Errorf("%w: got %q", ErrReadTimeout, resp)
		default:
			return nil, fmt.Errorf("%w: %v", ErrRead, err)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Fatal reports whether err ends the device session.
func Fatal(err error) bool {
	return errors.Is(err, ErrWrite) || errors.Is(err, ErrReadTimeout) || errors.Is(err, ErrRead)
}
