package driver

import (
	"fmt"
	"strconv"
	"time"

	"driverkit/pkg/property"
)

// Standard vector and element names shared by every driver.
const (
	Connection = "CONNECTION"
	Connect    = "CONNECT"
	Disconnect = "DISCONNECT"

	DriverInfo      = "DRIVER_INFO"
	DriverName      = "DRIVER_NAME"
	DriverExec      = "DRIVER_EXEC"
	DriverVersion   = "DRIVER_VERSION"
	DriverInterface = "DRIVER_INTERFACE"
	DriverUID       = "DRIVER_UID"

	Simulation        = "SIMULATION"
	SimulationEnable  = "ENABLE"
	SimulationDisable = "DISABLE"

	PollingPeriod   = "POLLING_PERIOD"
	PollingPeriodMS = "PERIOD_MS"

	ConfigProcess = "CONFIG_PROCESS"
	ConfigSave    = "CONFIG_SAVE"
	ConfigLoad    = "CONFIG_LOAD"
)

const (
	MainControlTab = "Main Control"
	OptionsTab     = "Options"
	GeneralInfoTab = "General Info"
)

const (
	DefaultPollPeriod = time.Second
	MinPollPeriod     = 10 * time.Millisecond
	MaxPollPeriod     = 10 * time.Minute
)

// Interface is the bitmask of device families a driver implements.
type Interface uint32

const (
	InterfaceGeneral     Interface = 0
	InterfaceFocuser     Interface = 1 << 3
	InterfaceFilterWheel Interface = 1 << 4
	InterfaceDome        Interface = 1 << 5
	InterfaceDustCap     Interface = 1 << 9
	InterfaceLightBox    Interface = 1 << 10
	InterfaceAux         Interface = 1 << 15
)

func (i Interface) String() string {
	return strconv.FormatUint(uint64(i), 10)
}

// Info identifies the driver to observers.
type Info struct {
	Name     string
	Exec     string
	Version  string
	UniqueID string
}

type standardVectors struct {
	connection    *property.SwitchVector
	info          *property.TextVector
	simulation    *property.SwitchVector
	pollingPeriod *property.NumberVector
	configProcess *property.SwitchVector
}

func newStandardVectors(info Info, simulation bool, period time.Duration) (*standardVectors, error) {
	var (
		sv  standardVectors
		err error
	)

	sv.connection, err = property.NewSwitchVector(
		property.Meta{Name: Connection, Label: "Connection", Group: MainControlTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.OneOfMany,
		property.Switch{Name: Connect, Label: "Connect"},
		property.Switch{Name: Disconnect, Label: "Disconnect", On: true},
	)
	if err != nil {
		return nil, err
	}

	sv.info, err = property.NewTextVector(
		property.Meta{Name: DriverInfo, Label: "Driver Info", Group: GeneralInfoTab, Perm: property.ReadOnly, State: property.StateIdle},
		property.Text{Name: DriverName, Label: "Name", Value: info.Name},
		property.Text{Name: DriverExec, Label: "Exec", Value: info.Exec},
		property.Text{Name: DriverVersion, Label: "Version", Value: info.Version},
		property.Text{Name: DriverInterface, Label: "Interface", Value: InterfaceGeneral.String()},
		property.Text{Name: DriverUID, Label: "Unique ID", Value: info.UniqueID},
	)
	if err != nil {
		return nil, err
	}

	sv.simulation, err = property.NewSwitchVector(
		property.Meta{Name: Simulation, Label: "Simulation", Group: OptionsTab, Perm: property.ReadWrite, State: property.StateIdle, Persist: true},
		property.OneOfMany,
		property.Switch{Name: SimulationEnable, Label: "Enable", On: simulation},
		property.Switch{Name: SimulationDisable, Label: "Disable", On: !simulation},
	)
	if err != nil {
		return nil, err
	}

	// Out-of-range periods are clamped.
	sv.pollingPeriod, err = property.NewNumberVector(
		property.Meta{Name: PollingPeriod, Label: "Polling", Group: OptionsTab, Perm: property.ReadWrite, State: property.StateIdle, Persist: true},
		property.Clamp,
		property.Number{
			Name:   PollingPeriodMS,
			Label:  "Period (ms)",
			Format: "%.f",
			Min:    float64(MinPollPeriod.Milliseconds()),
			Max:    float64(MaxPollPeriod.Milliseconds()),
			Step:   1,
			Value:  float64(clampPeriod(period).Milliseconds()),
		},
	)
	if err != nil {
		return nil, err
	}

	sv.configProcess, err = property.NewSwitchVector(
		property.Meta{Name: ConfigProcess, Label: "Configuration", Group: OptionsTab, Perm: property.ReadWrite, State: property.StateIdle},
		property.AtMostOne,
		property.Switch{Name: ConfigSave, Label: "Save"},
		property.Switch{Name: ConfigLoad, Label: "Load"},
	)
	if err != nil {
		return nil, err
	}

	return &sv, nil
}

func clampPeriod(p time.Duration) time.Duration {
	if p <= 0 {
		return DefaultPollPeriod
	}
	return min(max(p, MinPollPeriod), MaxPollPeriod)
}

func (d *Driver) registerStandard() error {
	regs := []struct {
		v property.Vector
		h property.Handler
	}{
		{d.std.connection, d.handleConnection},
		{d.std.info, nil},
		{d.std.simulation, d.handleSimulation},
		{d.std.pollingPeriod, nil},
		{d.std.configProcess, d.handleConfigProcess},
	}
	for _, r := range regs {
		if err := d.registry.Register(r.v, property.Always, r.h); err != nil {
			return fmt.Errorf("failed to register %s: %v", r.v.Meta().Name, err)
		}
	}
	return nil
}

func (d *Driver) handleConnection(property.Vector) error {
	if d.std.connection.IsOn(Connect) {
		return d.connect(d.ctx)
	}
	d.disconnect()
	d.std.connection.SetState(property.StateIdle)
	return nil
}

func (d *Driver) handleSimulation(property.Vector) error {
	if d.state != Disconnected {
		return fmt.Errorf("%w: simulation can only be changed while disconnected", property.ErrRejectedUpdate)
	}
	d.negotiator.Simulation = d.std.simulation.IsOn(SimulationEnable)
	if d.negotiator.Simulation {
		d.logger.Info("Simulation enabled")
	} else {
		d.logger.Info("Simulation disabled")
	}
	return nil
}

func (d *Driver) handleConfigProcess(property.Vector) error {
	var err error
	switch d.std.configProcess.OnSwitch() {
	case ConfigSave:
		err = d.SaveConfig()
	case ConfigLoad:
		err = d.LoadConfig()
	}
	d.std.configProcess.Reset()
	return err
}

// syncSimulation keeps the SIMULATION vector and the negotiator in
// agreement after saved settings were loaded.
func (d *Driver) syncSimulation() {
	if d.state == Disconnected {
		d.negotiator.Simulation = d.std.simulation.IsOn(SimulationEnable)
		return
	}
	if d.negotiator.Simulation {
		d.std.simulation.Set(SimulationEnable, true)
	} else {
		d.std.simulation.Set(SimulationDisable, true)
	}
}
