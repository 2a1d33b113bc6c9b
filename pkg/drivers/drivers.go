// Package drivers maps configured device kinds to driver constructors.
package drivers

import (
	"fmt"
	"sort"

	"driverkit/pkg/driver"
	"driverkit/pkg/drivers/custom"
	"driverkit/pkg/drivers/dome"
	"driverkit/pkg/drivers/dustcap"
	"driverkit/pkg/drivers/filterwheel"
	"driverkit/pkg/drivers/focuser"
	"driverkit/pkg/drivers/lightbox"
)

var constructors = map[string]func() driver.Device{
	"custom":      func() driver.Device { return custom.New() },
	"dome":        func() driver.Device { return dome.New() },
	"dustcap":     func() driver.Device { return dustcap.New() },
	"filterwheel": func() driver.Device { return filterwheel.New() },
	"focuser":     func() driver.Device { return focuser.New() },
	"lightbox":    func() driver.Device { return lightbox.New() },
}

// New returns a fresh device of the given kind.
func New(kind string) (driver.Device, error) {
	c, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown device kind %q", kind)
	}
	return c(), nil
}

// Kinds returns the supported device kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
