// Package driver is the runtime shell shared by every device driver: it
// owns the property registry, the connection and the polling scheduler,
// and moves the device between Disconnected, Connecting and Connected.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"driverkit/pkg/channel"
	"driverkit/pkg/connection"
	"driverkit/pkg/poll"
	"driverkit/pkg/property"
)

var ErrNotConnected = errors.New("not connected")

// State is the connection state of a driver.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Device is the device specific part of a driver.
type Device interface {
	// DefaultName is used when no name is configured.
	DefaultName() string

	// InitProperties builds and registers the device vectors and
	// capabilities. It runs once, before any connection exists.
	InitProperties(d *Driver) error

	// Handshake confirms the device is alive right after the transport
	// opened. It may use d.Exchange.
	Handshake(d *Driver) error
}

// Poller is implemented by devices that poll the hardware while connected.
// TimerHit must call d.SetTimer to be called again.
type Poller interface {
	TimerHit(d *Driver) error
}

// PropertyUpdater is told when the connection-dependent vectors have been
// published or withdrawn.
type PropertyUpdater interface {
	UpdateProperties(d *Driver, connected bool) error
}

// Router handles update requests for names the registry does not know.
type Router interface {
	Route(d *Driver, req property.Request) (bool, error)
}

// Capability is one optional feature of a device, such as parking or
// filter selection. Its vectors are published while connected.
type Capability interface {
	Interface() Interface
	Install(d *Driver) error
}

// SettingsStore persists the saved vectors of a device.
type SettingsStore interface {
	SaveProperties(device string, settings []property.Setting) error
	LoadProperties(device string) ([]property.Setting, error)
}

type Options struct {
	Info        Info
	Connection  connection.Config
	Simulation  bool
	PollPeriod  time.Duration
	Broadcaster property.Broadcaster
	Store       SettingsStore
	Opener      connection.Opener
	Clock       poll.Clock
	Dispatch    func(func())
	Logger      log.FieldLogger
}

// Driver is one device instance. Its methods are not safe for concurrent
// use: call them from a single goroutine, usually the process Loop.
type Driver struct {
	dev        Device
	name       string
	conn       connection.Config
	negotiator *connection.Negotiator
	channel    *channel.Channel
	handle     *connection.Handle
	registry   *property.Registry
	scheduler  *poll.Scheduler
	store      SettingsStore
	std        *standardVectors
	iface      Interface
	state      State
	ctx        context.Context
	logger     log.FieldLogger
}

func New(dev Device, opts Options) (*Driver, error) {
	if opts.Broadcaster == nil {
		return nil, errors.New("broadcaster cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	info := opts.Info
	if info.Name == "" {
		info.Name = dev.DefaultName()
	}
	logger = logger.WithField("device", info.Name)

	std, err := newStandardVectors(info, opts.Simulation, opts.PollPeriod)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		dev:        dev,
		name:       info.Name,
		conn:       opts.Connection,
		negotiator: connection.NewNegotiator(opts.Opener, logger),
		channel:    channel.New(logger),
		registry:   property.NewRegistry(info.Name, opts.Broadcaster, logger),
		scheduler:  poll.New(opts.Clock, opts.Dispatch),
		store:      opts.Store,
		std:        std,
		state:      Disconnected,
		ctx:        context.Background(),
		logger:     logger,
	}
	d.negotiator.Simulation = opts.Simulation

	if err := d.registerStandard(); err != nil {
		return nil, err
	}
	if err := dev.InitProperties(d); err != nil {
		return nil, fmt.Errorf("failed to init %s properties: %v", d.name, err)
	}
	if err := d.std.info.SetValue(DriverInterface, d.iface.String()); err != nil {
		return nil, err
	}

	if d.store != nil {
		if err := d.loadSettings(); err != nil {
			d.logger.Warnf("Failed to load saved configuration: %v", err)
		}
	}
	return d, nil
}

func (d *Driver) Name() string { return d.name }
func (d *Driver) State() State { return d.state }
func (d *Driver) Connected() bool { return d.state == Connected }
func (d *Driver) Simulated() bool { return d.negotiator.Simulation }
func (d *Driver) Registry() *property.Registry { return d.registry }
func (d *Driver) Logger() log.FieldLogger { return d.logger }
func (d *Driver) Interfaces() Interface { return d.iface }
func (d *Driver) Snapshots() []property.Snapshot { return d.registry.Snapshots() }

// AddCapabilities installs capabilities and adds their interface bits.
func (d *Driver) AddCapabilities(caps ...Capability) error {
	for _, c := range caps {
		if err := c.Install(d); err != nil {
			return err
		}
		d.iface |= c.Interface()
	}
	return nil
}

// SetInterface adds interface bits for devices without capabilities.
func (d *Driver) SetInterface(i Interface) {
	d.iface |= i
}

// PollPeriod returns the configured polling period.
func (d *Driver) PollPeriod() time.Duration {
	ms, _ := d.std.pollingPeriod.Value(PollingPeriodMS)
	return clampPeriod(time.Duration(ms) * time.Millisecond)
}

// GetProperties publishes the vectors observers can see in the current
// state. It is what a driver does when an observer first asks for them.
func (d *Driver) GetProperties() error {
	for _, v := range d.registry.Vectors(property.Always) {
		if err := d.registry.Define(v); err != nil {
			return err
		}
	}
	if d.state == Connected {
		return d.defineConnected()
	}
	return nil
}

// Connect runs the connect transition and reports it on CONNECTION.
func (d *Driver) Connect(ctx context.Context) error {
	err := d.connect(ctx)
	d.syncConnection(err)
	return err
}

// Disconnect runs the disconnect transition and reports it on CONNECTION.
// It does nothing while disconnected.
func (d *Driver) Disconnect() error {
	if d.state == Disconnected {
		return nil
	}
	d.disconnect()
	d.syncConnection(nil)
	return nil
}

// Close disconnects the device, if connected.
func (d *Driver) Close() {
	d.logger.Info("Closing driver")
	if d.state == Connected {
		d.Disconnect()
	}
}

func (d *Driver) connect(ctx context.Context) error {
	if d.state != Disconnected {
		return nil
	}

	d.state = Connecting
	d.logger.Debugf("Connecting via %s", d.conn.Kind)

	h, err := d.negotiator.Connect(ctx, d.conn, func(h *connection.Handle) error {
		d.handle = h
		return d.dev.Handshake(d)
	})
	if err != nil {
		d.handle = nil
		d.state = Disconnected
		d.logger.Errorf("Failed to connect: %v", err)
		d.Message(fmt.Sprintf("Failed to connect: %v", err))
		return err
	}

	d.handle = h
	d.state = Connected
	if err := d.defineConnected(); err != nil {
		d.logger.Errorf("Failed to publish properties: %v", err)
	}
	if u, ok := d.dev.(PropertyUpdater); ok {
		if err := u.UpdateProperties(d, true); err != nil {
			d.logger.Warnf("Failed to update properties: %v", err)
		}
	}
	if _, ok := d.dev.(Poller); ok {
		d.scheduler.Arm(d.PollPeriod(), d.timerHit)
	}

	if d.negotiator.Simulation {
		d.Message(fmt.Sprintf("%s is online (simulation)", d.name))
	} else {
		d.Message(fmt.Sprintf("%s is online", d.name))
	}
	d.logger.Info("Connected")
	return nil
}

func (d *Driver) disconnect() {
	if d.state != Connected {
		return
	}

	d.scheduler.Disarm()
	for _, v := range d.registry.Vectors(property.WhileConnected) {
		d.registry.Withdraw(v.Meta().Name)
	}
	if u, ok := d.dev.(PropertyUpdater); ok {
		if err := u.UpdateProperties(d, false); err != nil {
			d.logger.Warnf("Failed to update properties: %v", err)
		}
	}

	if err := d.negotiator.Disconnect(d.handle); err != nil {
		d.logger.Warnf("Failed to close transport: %v", err)
	}
	d.handle = nil
	d.state = Disconnected

	d.Message(fmt.Sprintf("%s is offline", d.name))
	d.logger.Info("Disconnected")
}

func (d *Driver) defineConnected() error {
	for _, v := range d.registry.Vectors(property.WhileConnected) {
		if err := d.registry.Define(v); err != nil {
			return err
		}
	}
	return nil
}

// syncConnection makes CONNECTION show the current state and broadcasts
// it if published.
func (d *Driver) syncConnection(err error) {
	cv := d.std.connection
	switch {
	case err != nil:
		cv.Set(Disconnect, true)
		cv.SetState(property.StateAlert)
	case d.state == Connected:
		cv.Set(Connect, true)
		cv.SetState(property.StateOk)
	default:
		cv.Set(Disconnect, true)
		cv.SetState(property.StateIdle)
	}
	if d.registry.Published(Connection) {
		d.registry.Update(Connection)
	}
}

// Route handles an update request. Requests for names the registry does
// not know go to the device Router, if any.
func (d *Driver) Route(req property.Request) (bool, error) {
	if req.Device != "" && req.Device != d.name {
		return false, nil
	}
	handled, err := d.registry.Route(req)
	if handled {
		return true, err
	}
	if r, ok := d.dev.(Router); ok {
		return r.Route(d, req)
	}
	return false, nil
}

// SetTimer asks for the next poll after period. Polling stops when
// TimerHit returns without calling it.
func (d *Driver) SetTimer(period time.Duration) bool {
	return d.scheduler.Next(period)
}

func (d *Driver) timerHit() {
	if d.state != Connected {
		return
	}
	p, ok := d.dev.(Poller)
	if !ok {
		return
	}

	err := p.TimerHit(d)
	if err == nil {
		return
	}
	if channel.Fatal(err) {
		d.logger.Errorf("Lost connection: %v", err)
		d.Message(fmt.Sprintf("Lost connection: %v", err))
		d.disconnect()
		d.syncConnection(err)
		return
	}
	d.logger.Warnf("Poll failed: %v", err)
}

// Exchange sends payload to the device and returns its answer without the
// terminator.
func (d *Driver) Exchange(payload []byte, terminator byte, timeout time.Duration) ([]byte, error) {
	if d.handle == nil {
		return nil, ErrNotConnected
	}
	return d.channel.Exchange(d.handle, payload, terminator, timeout)
}

// Message forwards a message to observers.
func (d *Driver) Message(msg string) {
	d.registry.Message(msg)
}

// SaveConfig persists every saved vector.
func (d *Driver) SaveConfig() error {
	if d.store == nil {
		return errors.New("no configuration store")
	}
	if err := d.store.SaveProperties(d.name, d.registry.Settings()); err != nil {
		return fmt.Errorf("failed to save configuration: %v", err)
	}
	d.logger.Debug("Configuration saved")
	return nil
}

// LoadConfig restores saved values and broadcasts the vectors that are
// published.
func (d *Driver) LoadConfig() error {
	if d.store == nil {
		return errors.New("no configuration store")
	}
	if err := d.loadSettings(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, s := range d.registry.Settings() {
		if seen[s.Property] || !d.registry.Published(s.Property) {
			continue
		}
		seen[s.Property] = true
		d.registry.Update(s.Property)
	}
	return nil
}

func (d *Driver) loadSettings() error {
	settings, err := d.store.LoadProperties(d.name)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %v", err)
	}
	err = d.registry.LoadSettings(settings)
	d.syncSimulation()
	return err
}
