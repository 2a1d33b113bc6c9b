// Package server exposes the drivers over HTTP: a management listing, the
// property API, a websocket broadcast stream and a UDP discovery responder.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

type Description struct {
	Name     string `json:"server_name"`
	Version  string `json:"version"`
	Location string `json:"location"`
}

// DeviceInfo describes one served device.
type DeviceInfo struct {
	Name       string `json:"name"`
	Interfaces string `json:"interfaces"`
	State      string `json:"state"`
	Simulated  bool   `json:"simulated"`
}

// Server serves a fixed set of drivers. Every driver call runs on loop.
type Server struct {
	description Description
	loop        *driver.Loop
	drivers     []*driver.Driver
	byName      map[string]*driver.Driver
	hub         *Hub
	metrics     prometheus.Gatherer
	logger      log.FieldLogger
}

func NewServer(description Description, loop *driver.Loop, drivers []*driver.Driver, hub *Hub, logger log.FieldLogger) *Server {
	s := &Server{
		description: description,
		loop:        loop,
		drivers:     drivers,
		byName:      make(map[string]*driver.Driver, len(drivers)),
		hub:         hub,
		logger:      logger.WithField("component", "http"),
	}
	for _, d := range drivers {
		s.byName[d.Name()] = d
	}
	if hub != nil {
		hub.initial = s.snapshots
	}
	return s
}

// SetMetrics serves g on /metrics.
func (s *Server) SetMetrics(g prometheus.Gatherer) {
	s.metrics = g
}

func (s *Server) AddRoutes() *http.ServeMux {
	r := http.NewServeMux()

	r.HandleFunc("GET /management/apiversions", s.handleAPIVersions)
	r.HandleFunc("GET /management/v1/description", s.handleDescription)
	r.HandleFunc("GET /management/v1/devices", s.handleDevices)

	r.HandleFunc("GET /api/v1/{device}/properties", s.withDriver(s.handleProperties))
	r.HandleFunc("GET /api/v1/{device}/properties/{name}", s.withDriver(s.handleProperty))
	r.HandleFunc("PUT /api/v1/{device}/properties/{name}", s.withDriver(s.handleSetProperty))
	r.HandleFunc("PUT /api/v1/{device}/connect", s.withDriver(s.handleConnect))
	r.HandleFunc("PUT /api/v1/{device}/disconnect", s.withDriver(s.handleDisconnect))

	if s.hub != nil {
		r.Handle("GET /api/v1/stream", s.hub)
	}
	if s.metrics != nil {
		r.Handle("GET /metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
	return r
}

type driverHandler func(w http.ResponseWriter, r *http.Request, d *driver.Driver)

func (s *Server) withDriver(h driverHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("device")
		d, ok := s.byName[name]
		if !ok {
			handleError(w, http.StatusNotFound, fmt.Errorf("unknown device %q", name))
			return
		}
		h(w, r, d)
	}
}

// do runs fn on the loop on behalf of r.
func (s *Server) do(r *http.Request, fn func() error) error {
	return s.loop.Do(r.Context(), fn)
}

func (s *Server) snapshots() []property.Snapshot {
	var out []property.Snapshot
	s.loop.Do(context.Background(), func() error {
		for _, d := range s.drivers {
			out = append(out, d.Snapshots()...)
		}
		return nil
	})
	return out
}

func (s *Server) handleAPIVersions(w http.ResponseWriter, r *http.Request) {
	handleResponse(w, []int{1})
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	handleResponse(w, s.description)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	infos := make([]DeviceInfo, 0, len(s.drivers))
	err := s.do(r, func() error {
		for _, d := range s.drivers {
			infos = append(infos, DeviceInfo{
				Name:       d.Name(),
				Interfaces: d.Interfaces().String(),
				State:      d.State().String(),
				Simulated:  d.Simulated(),
			})
		}
		return nil
	})
	if err != nil {
		handleError(w, statusOf(err), err)
		return
	}
	handleResponse(w, infos)
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request, d *driver.Driver) {
	var snaps []property.Snapshot
	if err := s.do(r, func() error {
		snaps = d.Snapshots()
		return nil
	}); err != nil {
		handleError(w, statusOf(err), err)
		return
	}
	if snaps == nil {
		snaps = []property.Snapshot{}
	}
	handleResponse(w, snaps)
}

// published returns the snapshot of a published vector.
func published(d *driver.Driver, name string) (property.Snapshot, error) {
	v, ok := d.Registry().Get(name)
	if !ok || !d.Registry().Published(name) {
		return property.Snapshot{}, fmt.Errorf("%w: %s", property.ErrUnknownProperty, name)
	}
	return v.Snapshot(d.Name()), nil
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request, d *driver.Driver) {
	name := r.PathValue("name")
	var snap property.Snapshot
	err := s.do(r, func() error {
		var err error
		snap, err = published(d, name)
		return err
	})
	if err != nil {
		handleError(w, statusOf(err), err)
		return
	}
	handleResponse(w, snap)
}

// handleSetProperty routes the request body as an update of the named
// vector and answers with the vector state that was broadcast.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request, d *driver.Driver) {
	var req property.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}
	req.Device = d.Name()
	req.Name = r.PathValue("name")

	var snap *property.Snapshot
	var routeErr error
	err := s.do(r, func() error {
		handled, err := d.Route(req)
		if !handled {
			return fmt.Errorf("%w: %s", property.ErrUnknownProperty, req.Name)
		}
		routeErr = err
		if p, err := published(d, req.Name); err == nil {
			snap = &p
		}
		return nil
	})
	if err != nil {
		handleError(w, statusOf(err), err)
		return
	}
	if routeErr != nil {
		s.logger.Debugf("Update of %s on %s failed: %v", req.Name, d.Name(), routeErr)
		if snap == nil {
			handleError(w, statusOf(routeErr), routeErr)
			return
		}
		handleErrorValue(w, statusOf(routeErr), routeErr, snap)
		return
	}
	handleResponse(w, snap)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request, d *driver.Driver) {
	if err := s.do(r, func() error { return d.Connect(r.Context()) }); err != nil {
		handleError(w, statusOf(err), err)
		return
	}
	handleResponse(w, true)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request, d *driver.Driver) {
	if err := s.do(r, d.Disconnect); err != nil {
		handleError(w, statusOf(err), err)
		return
	}
	handleResponse(w, true)
}
