package property

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Broadcaster receives the state of published vectors. Implementations
// deliver to remote observers and are assumed reliable and in order.
type Broadcaster interface {
	Define(s Snapshot)
	Update(s Snapshot)
	Delete(device, name string)
	Message(device, msg string)
}

// Visibility decides when a registered vector is published.
type Visibility int

const (
	// Always vectors are published as soon as the driver announces itself.
	Always Visibility = iota
	// WhileConnected vectors are published on connect and withdrawn on
	// disconnect.
	WhileConnected
)

// Handler runs after an accepted update has been applied to v. A non-nil
// error rolls the values back and sets the vector to Alert. Handlers may set
// the vector state themselves and may update other vectors.
type Handler func(v Vector) error

type entry struct {
	v         Vector
	vis       Visibility
	handler   Handler
	published bool
}

// Registry owns the vectors of one device. It is not safe for concurrent use.
type Registry struct {
	device  string
	out     Broadcaster
	entries map[string]*entry
	order   []string
	logger  log.FieldLogger
}

func NewRegistry(device string, out Broadcaster, logger log.FieldLogger) *Registry {
	return &Registry{
		device:  device,
		out:     out,
		entries: make(map[string]*entry),
		logger:  logger.WithField("component", "registry"),
	}
}

// Device returns the name of the device owning the registry.
func (r *Registry) Device() string {
	return r.device
}

// Register adds a vector with its visibility and optional handler. Names
// must be unique within the registry.
func (r *Registry) Register(v Vector, vis Visibility, h Handler) error {
	name := v.Meta().Name
	if name == "" {
		return errors.New("vector name cannot be empty")
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("vector %s already registered", name)
	}
	r.entries[name] = &entry{v: v, vis: vis, handler: h}
	r.order = append(r.order, name)
	return nil
}

// Define publishes v if it is not published yet. Unregistered vectors are
// registered with Always visibility and no handler.
func (r *Registry) Define(v Vector) error {
	name := v.Meta().Name
	e, ok := r.entries[name]
	if !ok {
		if err := r.Register(v, Always, nil); err != nil {
			return err
		}
		e = r.entries[name]
	} else if e.v != v {
		return fmt.Errorf("vector %s is registered with a different instance", name)
	}

	if e.published {
		return nil
	}
	e.published = true
	r.logger.Debugf("Define %s", name)
	r.out.Define(e.v.Snapshot(r.device))
	return nil
}

// Withdraw un-publishes the named vector. Unknown or unpublished names are
// ignored.
func (r *Registry) Withdraw(name string) {
	e, ok := r.entries[name]
	if !ok || !e.published {
		return
	}
	e.published = false
	r.logger.Debugf("Delete %s", name)
	r.out.Delete(r.device, name)
}

// Update re-sends the current state of a published vector.
func (r *Registry) Update(name string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	if !e.published {
		return fmt.Errorf("%w: %s is not published", ErrInvalidState, name)
	}
	r.out.Update(e.v.Snapshot(r.device))
	return nil
}

// Route applies an update request. It returns false when no registered
// vector has the requested name so the caller can try another handler.
// Every routed request to a published vector produces exactly one broadcast
// of that vector.
func (r *Registry) Route(req Request) (bool, error) {
	e, ok := r.entries[req.Name]
	if !ok {
		return false, nil
	}
	if !e.published {
		return true, fmt.Errorf("%w: %s is not published", ErrInvalidState, req.Name)
	}

	meta := e.v.Meta()
	prev := e.v.values()

	var err error
	switch {
	case !meta.Perm.Writable():
		err = rejectf("%s is read-only", meta.Name)
	case !req.kindOK(e.v.Kind()):
		err = rejectf("%s is a %s vector", meta.Name, e.v.Kind())
	default:
		err = e.v.apply(req)
	}

	if err == nil {
		meta.State = StateOk
		if e.handler != nil {
			if herr := e.handler(e.v); herr != nil {
				e.v.restore(prev)
				err = herr
			}
		}
	}
	if err != nil {
		meta.State = StateAlert
		r.logger.Warnf("Update of %s failed: %v", meta.Name, err)
	}

	if e.published {
		r.out.Update(e.v.Snapshot(r.device))
	}
	return true, err
}

// Get returns the registered vector with the given name.
func (r *Registry) Get(name string) (Vector, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.v, true
}

// Published reports whether the named vector is currently published.
func (r *Registry) Published(name string) bool {
	e, ok := r.entries[name]
	return ok && e.published
}

// Vectors returns the registered vectors with the given visibility, in
// registration order.
func (r *Registry) Vectors(vis Visibility) []Vector {
	var out []Vector
	for _, name := range r.order {
		if e := r.entries[name]; e.vis == vis {
			out = append(out, e.v)
		}
	}
	return out
}

// Snapshots returns the state of every published vector.
func (r *Registry) Snapshots() []Snapshot {
	var out []Snapshot
	for _, name := range r.order {
		if e := r.entries[name]; e.published {
			out = append(out, e.v.Snapshot(r.device))
		}
	}
	return out
}

// Message forwards a free-form message to observers.
func (r *Registry) Message(msg string) {
	r.out.Message(r.device, msg)
}
