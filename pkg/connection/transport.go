package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.bug.st/serial"
)

// Port is an open byte transport.
type Port interface {
	io.ReadWriteCloser

	// Flush discards any input received but not read yet.
	Flush() error

	// SetReadDeadline bounds subsequent reads. A read that reaches the
	// deadline returns 0 bytes and either a nil error or a timeout error.
	SetReadDeadline(t time.Time) error
}

// BaudRateSetter is implemented by ports whose line speed can be changed
// after open.
type BaudRateSetter interface {
	SetBaudRate(baud int) error
}

// Opener opens the transport described by a Config.
type Opener interface {
	Open(ctx context.Context, cfg Config) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, cfg Config) (Port, error)

func (f OpenerFunc) Open(ctx context.Context, cfg Config) (Port, error) {
	return f(ctx, cfg)
}

// SystemOpener opens real serial devices and TCP sockets.
type SystemOpener struct{}

func (SystemOpener) Open(ctx context.Context, cfg Config) (Port, error) {
	switch cfg.Kind {
	case KindSerial:
		p, err := openSerial(cfg.Serial)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindNetwork:
		p, err := openNetwork(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown connection kind %q", cfg.Kind)
	}
}

type serialPort struct {
	port     serial.Port
	deadline time.Time
}

func openSerial(cfg SerialConfig) (*serialPort, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("serial port %s not found", cfg.Port)
		}
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return &serialPort{port: port}, nil
}

// Read honors the deadline across calls: the serial driver only knows a
// per-read timeout.
func (p *serialPort) Read(b []byte) (int, error) {
	if !p.deadline.IsZero() {
		remaining := time.Until(p.deadline)
		if remaining <= 0 {
			return 0, nil
		}
		if err := p.port.SetReadTimeout(remaining); err != nil {
			return 0, err
		}
	}
	return p.port.Read(b)
}

func (p *serialPort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *serialPort) Close() error { return p.port.Close() }
func (p *serialPort) Flush() error { return p.port.ResetInputBuffer() }

func (p *serialPort) SetReadDeadline(t time.Time) error {
	p.deadline = t
	if t.IsZero() {
		return p.port.SetReadTimeout(serial.NoTimeout)
	}
	return nil
}

func (p *serialPort) SetBaudRate(baud int) error {
	return p.port.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

type netPort struct {
	net.Conn
}

func openNetwork(ctx context.Context, cfg Config) (*netPort, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Address(), err)
	}
	return &netPort{Conn: conn}, nil
}

const flushWindow = 10 * time.Millisecond

// Flush drains whatever the peer already sent. Sockets have no input
// buffer reset, so it reads until a short deadline expires.
func (p *netPort) Flush() error {
	if err := p.Conn.SetReadDeadline(time.Now().Add(flushWindow)); err != nil {
		return err
	}
	defer p.Conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 256)
	for {
		_, err := p.Conn.Read(buf)
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		return err
	}
}
