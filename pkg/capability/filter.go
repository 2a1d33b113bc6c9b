package capability

import (
	"fmt"

	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

const (
	FilterSlot      = "FILTER_SLOT"
	FilterSlotValue = "FILTER_SLOT_VALUE"
	FilterName      = "FILTER_NAME"
	FilterTab       = "Filter Wheel"
)

// FilterSlotName returns the element name of the label of slot n.
func FilterSlotName(n int) string {
	return fmt.Sprintf("FILTER_SLOT_NAME_%d", n)
}

// FilterSelector turns the wheel.
type FilterSelector interface {
	SelectFilter(d *driver.Driver, slot int) (property.State, error)
}

// FilterWheel publishes the selected slot and the filter names.
type FilterWheel struct {
	selector FilterSelector
	slots    int
	Slot     *property.NumberVector
	Names    *property.TextVector
}

func NewFilterWheel(s FilterSelector, slots int) *FilterWheel {
	return &FilterWheel{selector: s, slots: slots}
}

func (c *FilterWheel) Interface() driver.Interface { return driver.InterfaceFilterWheel }

func (c *FilterWheel) Install(d *driver.Driver) error {
	if c.slots < 1 {
		return fmt.Errorf("filter wheel needs at least one slot, got %d", c.slots)
	}

	var err error
	// Slots outside the wheel are rejected.
	c.Slot, err = property.NewNumberVector(
		property.Meta{Name: FilterSlot, Label: "Filter Slot", Group: FilterTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.Reject,
		property.Number{Name: FilterSlotValue, Label: "Filter", Format: "%3.0f", Min: 1, Max: float64(c.slots), Step: 1, Value: 1},
	)
	if err != nil {
		return err
	}

	names := make([]property.Text, c.slots)
	for i := range names {
		names[i] = property.Text{
			Name:  FilterSlotName(i + 1),
			Label: fmt.Sprintf("Filter #%d", i+1),
			Value: fmt.Sprintf("Filter_%d", i+1),
		}
	}
	c.Names, err = property.NewTextVector(
		property.Meta{Name: FilterName, Label: "Filter", Group: FilterTab, Perm: property.ReadWrite, State: property.StateIdle, Persist: true},
		names...,
	)
	if err != nil {
		return err
	}

	reg := d.Registry()
	if err := reg.Register(c.Slot, property.WhileConnected, func(property.Vector) error {
		slot, _ := c.Slot.Value(FilterSlotValue)
		d.Logger().Infof("Selecting filter %d", int(slot))
		st, err := c.selector.SelectFilter(d, int(slot))
		return settle(c.Slot, st, err)
	}); err != nil {
		return err
	}
	return reg.Register(c.Names, property.WhileConnected, nil)
}

// Current returns the selected slot, starting at 1.
func (c *FilterWheel) Current() int {
	v, _ := c.Slot.Value(FilterSlotValue)
	return int(v)
}

// NameOf returns the label of slot n.
func (c *FilterWheel) NameOf(n int) string {
	name, _ := c.Names.Value(FilterSlotName(n))
	return name
}

// SelectDone reports that the wheel reached slot.
func (c *FilterWheel) SelectDone(d *driver.Driver, slot int) {
	c.Slot.SetValue(FilterSlotValue, float64(slot))
	c.Slot.SetState(property.StateOk)
	publish(d, c.Slot)
}
