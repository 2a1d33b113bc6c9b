// Package connection opens the byte transport of a device and confirms the
// device is alive with a driver supplied handshake.
package connection

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrTransportUnavailable is returned when the transport cannot be
	// opened. No retry is attempted.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrHandshakeFailed is returned when the device did not answer the
	// handshake as expected. The transport is closed before returning.
	ErrHandshakeFailed = errors.New("handshake failed")
)

// Handle is an open transport owned by a single driver. A simulated handle
// has no port and is never used for real I/O.
type Handle struct {
	kind      Kind
	port      Port
	simulated bool
	closed    bool
}

// NewHandle wraps an already open port.
func NewHandle(kind Kind, port Port) *Handle {
	return &Handle{kind: kind, port: port}
}

// SimulatedHandle returns a handle that performs no I/O.
func SimulatedHandle(kind Kind) *Handle {
	return &Handle{kind: kind, simulated: true}
}

func (h *Handle) Kind() Kind { return h.kind }
func (h *Handle) Simulated() bool { return h.simulated }
func (h *Handle) Closed() bool { return h.closed }

// Port returns the underlying transport, or nil for simulated or closed
// handles.
func (h *Handle) Port() Port {
	if h.closed {
		return nil
	}
	return h.port
}

func (h *Handle) close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.port == nil {
		return nil
	}
	return h.port.Close()
}

// Handshake confirms the device on the other end of h is alive.
type Handshake func(h *Handle) error

// Negotiator opens transports and runs handshakes.
type Negotiator struct {
	opener Opener
	logger log.FieldLogger

	// Simulation skips the physical open and hands the handshake a
	// simulated handle.
	Simulation bool
}

// NewNegotiator returns a negotiator using opener, or the system serial and
// network transports when opener is nil.
func NewNegotiator(opener Opener, logger log.FieldLogger) *Negotiator {
	if opener == nil {
		opener = SystemOpener{}
	}
	return &Negotiator{
		opener: opener,
		logger: logger.WithField("component", "connection"),
	}
}

// Connect opens the transport described by cfg and runs handshake on it.
// For serial transports the configured baud rate is applied first.
func (n *Negotiator) Connect(ctx context.Context, cfg Config, handshake Handshake) (*Handle, error) {
	var h *Handle
	if n.Simulation {
		n.logger.Debugf("Simulating %s connection to %s", cfg.Kind, cfg.Address())
		h = SimulatedHandle(cfg.Kind)
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		}

		n.logger.Infof("Opening %s connection to %s", cfg.Kind, cfg.Address())
		port, err := n.opener.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		}
		h = NewHandle(cfg.Kind, port)

		if cfg.Kind == KindSerial {
			if setter, ok := port.(BaudRateSetter); ok {
				if err := setter.SetBaudRate(cfg.Serial.BaudRate); err != nil {
					n.close(h)
					return nil, fmt.Errorf("%w: failed to set baud rate %d: %v", ErrTransportUnavailable, cfg.Serial.BaudRate, err)
				}
			}
		}
	}

	if handshake != nil {
		if err := handshake(h); err != nil {
			n.close(h)
			return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
	}
	return h, nil
}

// Disconnect closes the transport. It is safe to call on a nil or already
// closed handle.
func (n *Negotiator) Disconnect(h *Handle) error {
	if h == nil || h.closed {
		return nil
	}
	n.logger.Debugf("Closing %s connection", h.kind)
	return h.close()
}

func (n *Negotiator) close(h *Handle) {
	if err := h.close(); err != nil {
		n.logger.Warnf("Failed to close transport: %v", err)
	}
}
