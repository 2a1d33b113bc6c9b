package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultDiscoveryPort = 32227
	DiscoveryQuery       = "driverkitdiscovery1"
)

// DiscoveryResponder answers UDP discovery queries with the HTTP port.
type DiscoveryResponder struct {
	addr     string
	response []byte
	logger   log.FieldLogger
}

func NewDiscoveryResponder(addr string, apiPort int, logger log.FieldLogger) *DiscoveryResponder {
	return &DiscoveryResponder{
		addr:     addr,
		response: []byte(fmt.Sprintf(`{"ApiPort": %d}`, apiPort)),
		logger:   logger.WithField("component", "discovery"),
	}
}

// Run listens on addr and the given discovery port until ctx is done.
func (d *DiscoveryResponder) Run(ctx context.Context, port int) error {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(d.addr, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("cannot bind discovery socket: %v", err)
	}
	defer conn.Close()
	return d.Serve(ctx, conn)
}

// Serve answers queries received on conn until ctx is done.
func (d *DiscoveryResponder) Serve(ctx context.Context, conn net.PacketConn) error {
	buf := make([]byte, 1024)
	d.logger.Debugf("Discovery responder started on %s", conn.LocalAddr())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// The deadline bounds how long a cancelled ctx goes unnoticed.
		conn.SetReadDeadline(time.Now().Add(time.Second))

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.logger.Debugf("Error reading from socket: %v", err)
			continue
		}

		data := string(buf[:n])
		d.logger.Debugf("Received %s from %s", data, addr)

		if strings.Contains(data, DiscoveryQuery) {
			if _, err := conn.WriteTo(d.response, addr); err != nil {
				d.logger.Errorf("Error writing to socket: %v", err)
			}
		}
	}
}
