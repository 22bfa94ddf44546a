package melcloud

import (
	"fmt"
	"strconv"
	"time"
)

// Writable properties of an energy recovery ventilator.
const (
	PropertyVentilationMode = "ventilation_mode"
)

// Ventilator fan speed labels for the out-of-band codes. Positive
// speeds use their decimal string form.
const (
	FanSpeedUndefined = "undefined"
	FanSpeedStopped   = "0"
)

// Ventilation mode labels.
const (
	VentilationModeRecovery  = "recovery"
	VentilationModeBypass    = "bypass"
	VentilationModeAuto      = "auto"
	VentilationModeUndefined = "undefined"
)

var ventilationModes = enumCodec{
	labels: map[int]string{
		0: VentilationModeRecovery,
		1: VentilationModeBypass,
		2: VentilationModeAuto,
	},
	sentinel: VentilationModeUndefined,
}

// ervFanSpeedLabel maps a raw fan speed code to its label. Unlike the
// air-to-air units there is no auto slot; -1 means the device never
// reported a speed.
func ervFanSpeedLabel(code int) string {
	switch code {
	case -1:
		return FanSpeedUndefined
	case 0:
		return FanSpeedStopped
	default:
		return strconv.Itoa(code)
	}
}

func ervFanSpeedCode(label string) (int, error) {
	switch label {
	case FanSpeedUndefined:
		return -1, nil
	case FanSpeedStopped:
		return 0, nil
	}
	code, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("%w: fan speed %q", ErrInvalidEnumValue, label)
	}
	return code, nil
}

func ervWrites() writeTable {
	return writeTable{
		PropertyVentilationMode: {flag: 0x04, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyVentilationMode, value)
			if err != nil {
				return err
			}
			code, err := ventilationModes.encode(label)
			if err != nil {
				return err
			}
			state["VentilationMode"] = code
			return nil
		}},
		PropertyFanSpeed: {flag: 0x08, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyFanSpeed, value)
			if err != nil {
				return err
			}
			code, err := ervFanSpeedCode(label)
			if err != nil {
				return err
			}
			state["SetFanSpeed"] = code
			return nil
		}},
	}
}

// ErvDevice is an energy recovery ventilator (DeviceType 3).
type ErvDevice struct {
	*Device
}

func newErvDevice(conf map[string]any, transport Transport, debounce time.Duration, useFahrenheit bool) *ErvDevice {
	return &ErvDevice{Device: newDevice(conf, transport, debounce, useFahrenheit, ervWrites())}
}

// RoomTemperature returns the room temperature reported by the device.
func (d *ErvDevice) RoomTemperature() *float64 {
	return d.stateFloat("RoomTemperature")
}

// OutdoorTemperature returns the outdoor temperature reported by the
// device.
func (d *ErvDevice) OutdoorTemperature() *float64 {
	return d.stateFloat("OutdoorTemperature")
}

// VentilationMode returns the currently requested ventilation mode.
func (d *ErvDevice) VentilationMode() string {
	code, ok := asInt(d.stateProp("VentilationMode"))
	if !ok {
		return VentilationModeUndefined
	}
	return ventilationModes.decode(code)
}

// ActualVentilationMode returns the ventilation mode the device is
// actually running. In auto mode this reveals which mode was chosen.
func (d *ErvDevice) ActualVentilationMode() string {
	if !d.polled() {
		return VentilationModeUndefined
	}
	code, ok := asInt(d.confDevice()["ActualVentilationMode"])
	if !ok {
		return VentilationModeUndefined
	}
	return ventilationModes.decode(code)
}

// VentilationModes returns the available ventilation modes.
func (d *ErvDevice) VentilationModes() []string {
	return []string{VentilationModeRecovery, VentilationModeBypass, VentilationModeAuto}
}

// FanSpeed returns the currently requested fan speed, or nil before
// the first poll.
func (d *ErvDevice) FanSpeed() *string {
	if !d.polled() {
		return nil
	}
	code, ok := asInt(d.stateProp("SetFanSpeed"))
	if !ok {
		code = -1
	}
	label := ervFanSpeedLabel(code)
	return &label
}

// FanSpeeds returns the available fan speeds, read from the device
// capability attributes. Nil before the first poll.
func (d *ErvDevice) FanSpeeds() []string {
	if !d.polled() {
		return nil
	}
	count, ok := asInt(d.stateProp("NumberOfFanSpeeds"))
	if !ok {
		count = 0
	}
	speeds := make([]string, 0, count)
	for speed := 1; speed <= count; speed++ {
		speeds = append(speeds, ervFanSpeedLabel(speed))
	}
	return speeds
}

// ActualSupplyFanSpeed returns the measured supply fan speed.
func (d *ErvDevice) ActualSupplyFanSpeed() *string {
	return d.actualFanSpeed("ActualSupplyFanSpeed")
}

// ActualExhaustFanSpeed returns the measured exhaust fan speed.
func (d *ErvDevice) ActualExhaustFanSpeed() *string {
	return d.actualFanSpeed("ActualExhaustFanSpeed")
}

func (d *ErvDevice) actualFanSpeed(field string) *string {
	if !d.polled() {
		return nil
	}
	code, ok := asInt(d.confDevice()[field])
	if !ok {
		code = -1
	}
	label := ervFanSpeedLabel(code)
	return &label
}

// RoomCO2Level returns the CO2 level in ppm, or nil when the device
// has no CO2 sensor.
func (d *ErvDevice) RoomCO2Level() *float64 {
	if has := d.stateBool("HasCO2Sensor"); has == nil || !*has {
		return nil
	}
	return d.deviceFloat("RoomCO2Level")
}

// CoreMaintenanceRequired reports whether the heat exchange core needs
// maintenance.
func (d *ErvDevice) CoreMaintenanceRequired() bool {
	return d.deviceBool("CoreMaintenanceRequired")
}

// FilterMaintenanceRequired reports whether the filters need cleaning
// or replacement.
func (d *ErvDevice) FilterMaintenanceRequired() bool {
	return d.deviceBool("FilterMaintenanceRequired")
}

// NightPurgeMode reports whether night purge is active.
func (d *ErvDevice) NightPurgeMode() bool {
	return d.deviceBool("NightPurgeMode")
}

// WifiSignal returns the wifi signal strength in dBm.
func (d *ErvDevice) WifiSignal() *float64 {
	return d.deviceFloat("WifiSignalStrength")
}

// HasError reports whether the device is in an error state.
func (d *ErvDevice) HasError() bool {
	return d.deviceBool("HasError")
}

// ErrorCode returns the current error code. The cloud reports 8000
// when there is no error.
func (d *ErvDevice) ErrorCode() *int {
	code, ok := asInt(d.confDevice()["ErrorCode"])
	if !ok {
		return nil
	}
	return &code
}

// Presets returns the preset configurations created in the vendor app.
func (d *ErvDevice) Presets() []map[string]any {
	return asMapSlice(d.confRoot()["Presets"])
}

// HasEnergyConsumedMeter reports whether the device meters its energy
// consumption.
func (d *ErvDevice) HasEnergyConsumedMeter() bool {
	return d.deviceBool("HasEnergyConsumedMeter")
}

// TotalEnergyConsumed returns the total consumed energy in kWh. The
// cloud refreshes this reading very slowly, anywhere between 90
// minutes and 3 hours apart.
func (d *ErvDevice) TotalEnergyConsumed() *float64 {
	reading := d.deviceFloat("CurrentEnergyConsumed")
	if reading == nil {
		return nil
	}
	kwh := *reading / 1000.0
	return &kwh
}

// Snapshot returns a normalized view of the current control state, or
// nil before the first poll.
func (d *ErvDevice) Snapshot() map[string]any {
	if !d.polled() {
		return nil
	}
	snap := map[string]any{
		"kind":             KindErv,
		"ventilation_mode": d.VentilationMode(),
	}
	if p := d.Power(); p != nil {
		snap["power"] = *p
	}
	if s := d.FanSpeed(); s != nil {
		snap["fan_speed"] = *s
	}
	if t := d.RoomTemperature(); t != nil {
		snap["room_temperature"] = *t
	}
	if t := d.OutdoorTemperature(); t != nil {
		snap["outdoor_temperature"] = *t
	}
	if c := d.RoomCO2Level(); c != nil {
		snap["room_co2_level"] = *c
	}
	return snap
}
