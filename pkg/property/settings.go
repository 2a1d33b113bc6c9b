package property

import (
	"errors"
	"fmt"
)

const (
	switchOn  = "On"
	switchOff = "Off"
)

// Setting is one saved element value.
type Setting struct {
	Property string `json:"property" yaml:"property"`
	Element  string `json:"element" yaml:"element"`
	Value    string `json:"value" yaml:"value"`
}

// Settings returns the saved form of every writable vector that opted into
// persistence, in registration order.
func (r *Registry) Settings() []Setting {
	var out []Setting
	for _, name := range r.order {
		v := r.entries[name].v
		if meta := v.Meta(); meta.Persist && meta.Perm.Writable() {
			out = append(out, v.settings()...)
		}
	}
	return out
}

// SettingsFor returns the saved form of a single vector regardless of its
// persistence flag.
func (r *Registry) SettingsFor(name string) ([]Setting, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return e.v.settings(), nil
}

// LoadSettings writes saved values into the registered vectors without
// broadcasting. Settings for unknown or non-persistent vectors are skipped.
func (r *Registry) LoadSettings(settings []Setting) error {
	var errs []error
	for _, s := range settings {
		e, ok := r.entries[s.Property]
		if !ok || !e.v.Meta().Persist {
			r.logger.Debugf("Skipping saved value for %s.%s", s.Property, s.Element)
			continue
		}
		if err := e.v.loadSetting(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
