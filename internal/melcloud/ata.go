package melcloud

import (
	"fmt"
	"strconv"
	"time"
)

// Writable properties of an air-to-air unit.
const (
	PropertyTargetTemperature = "target_temperature"
	PropertyOperationMode     = "operation_mode"
	PropertyFanSpeed          = "fan_speed"
	PropertyVaneHorizontal    = "vane_horizontal"
	PropertyVaneVertical      = "vane_vertical"
)

// Operation mode labels.
const (
	OperationModeHeat      = "heat"
	OperationModeDry       = "dry"
	OperationModeCool      = "cool"
	OperationModeFanOnly   = "fan_only"
	OperationModeHeatCool  = "heat_cool"
	OperationModeUndefined = "undefined"
)

// FanSpeedAuto selects automatic fan speed; numeric speeds are the
// labels "1".."N".
const FanSpeedAuto = "auto"

// Vane position labels shared by both axes; the endpoints differ per
// axis.
const (
	VanePositionAuto      = "auto"
	VanePosition1Left     = "1_left"
	VanePosition1Up       = "1_up"
	VanePosition2         = "2"
	VanePosition3         = "3"
	VanePosition4         = "4"
	VanePosition5Right    = "5_right"
	VanePosition5Down     = "5_down"
	VanePositionSplit     = "split"
	VanePositionSwing     = "swing"
	VanePositionUndefined = "undefined"
)

var ataOperationModes = enumCodec{
	labels: map[int]string{
		1: OperationModeHeat,
		2: OperationModeDry,
		3: OperationModeCool,
		7: OperationModeFanOnly,
		8: OperationModeHeatCool,
	},
	sentinel: OperationModeUndefined,
}

var horizontalVanePositions = enumCodec{
	labels: map[int]string{
		0:  VanePositionAuto,
		1:  VanePosition1Left,
		2:  VanePosition2,
		3:  VanePosition3,
		4:  VanePosition4,
		5:  VanePosition5Right,
		8:  VanePositionSplit,
		12: VanePositionSwing,
	},
	sentinel: VanePositionUndefined,
}

var verticalVanePositions = enumCodec{
	labels: map[int]string{
		0: VanePositionAuto,
		1: VanePosition1Up,
		2: VanePosition2,
		3: VanePosition3,
		4: VanePosition4,
		5: VanePosition5Down,
		7: VanePositionSwing,
	},
	sentinel: VanePositionUndefined,
}

// Conf field carrying the temperature limit for each operation mode.
var (
	ataMinTempFields = map[string]string{
		OperationModeHeat:      "MinTempHeat",
		OperationModeDry:       "MinTempCoolDry",
		OperationModeCool:      "MinTempCoolDry",
		OperationModeFanOnly:   "MinTempHeat",
		OperationModeHeatCool:  "MinTempAutomatic",
		OperationModeUndefined: "MinTempHeat",
	}
	ataMaxTempFields = map[string]string{
		OperationModeHeat:      "MaxTempHeat",
		OperationModeDry:       "MaxTempCoolDry",
		OperationModeCool:      "MaxTempCoolDry",
		OperationModeFanOnly:   "MaxTempHeat",
		OperationModeHeatCool:  "MaxTempAutomatic",
		OperationModeUndefined: "MaxTempHeat",
	}
)

// ataFanSpeedLabel decodes a fan speed integer; 0 is automatic.
func ataFanSpeedLabel(speed int) string {
	if speed == 0 {
		return FanSpeedAuto
	}
	return strconv.Itoa(speed)
}

// ataFanSpeedCode encodes a fan speed label.
func ataFanSpeedCode(label string) (int, error) {
	if label == FanSpeedAuto {
		return 0, nil
	}
	speed, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidEnumValue, label)
	}
	return speed, nil
}

// ataWrites is the ATA write table. Bit assignments are fixed by the
// service protocol.
func ataWrites() writeTable {
	return writeTable{
		PropertyTargetTemperature: {flag: 0x04, apply: func(d *Device, state map[string]any, value any) error {
			t, err := requireFloat(PropertyTargetTemperature, value)
			if err != nil {
				return err
			}
			state["SetTemperature"] = d.RoundTemperature(t)
			return nil
		}},
		PropertyOperationMode: {flag: 0x02, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyOperationMode, value)
			if err != nil {
				return err
			}
			code, err := ataOperationModes.encode(label)
			if err != nil {
				return err
			}
			state["OperationMode"] = code
			return nil
		}},
		PropertyFanSpeed: {flag: 0x08, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyFanSpeed, value)
			if err != nil {
				return err
			}
			code, err := ataFanSpeedCode(label)
			if err != nil {
				return err
			}
			state["SetFanSpeed"] = code
			return nil
		}},
		PropertyVaneHorizontal: {flag: 0x100, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyVaneHorizontal, value)
			if err != nil {
				return err
			}
			code, err := horizontalVanePositions.encode(label)
			if err != nil {
				return err
			}
			state["VaneHorizontal"] = code
			return nil
		}},
		PropertyVaneVertical: {flag: 0x10, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyVaneVertical, value)
			if err != nil {
				return err
			}
			code, err := verticalVanePositions.encode(label)
			if err != nil {
				return err
			}
			state["VaneVertical"] = code
			return nil
		}},
	}
}

// AtaDevice is an air-to-air unit (DeviceType 0): the familiar wall or
// ceiling split with operation mode, setpoint, fan speed and vanes.
type AtaDevice struct {
	*Device
}

func newAtaDevice(conf map[string]any, transport Transport, debounce time.Duration, useFahrenheit bool) *AtaDevice {
	return &AtaDevice{Device: newDevice(conf, transport, debounce, useFahrenheit, ataWrites())}
}

// RoomTemperature returns the room temperature reported by the device.
func (d *AtaDevice) RoomTemperature() *float64 {
	return d.stateFloat("RoomTemperature")
}

// TargetTemperature returns the target temperature set for the device.
func (d *AtaDevice) TargetTemperature() *float64 {
	return d.stateFloat("SetTemperature")
}

// TargetTemperatureStep returns the setpoint precision.
func (d *AtaDevice) TargetTemperatureStep() float64 {
	return d.TemperatureIncrement()
}

// TargetTemperatureMin returns the minimum setpoint for the currently
// active operation mode.
func (d *AtaDevice) TargetTemperatureMin() *float64 {
	if !d.polled() {
		return nil
	}
	if f := d.deviceFloat(ataMinTempFields[d.OperationMode()]); f != nil {
		return f
	}
	fallback := 10.0
	return &fallback
}

// TargetTemperatureMax returns the maximum setpoint for the currently
// active operation mode.
func (d *AtaDevice) TargetTemperatureMax() *float64 {
	if !d.polled() {
		return nil
	}
	if f := d.deviceFloat(ataMaxTempFields[d.OperationMode()]); f != nil {
		return f
	}
	fallback := 31.0
	return &fallback
}

// OperationMode returns the currently active operation mode.
func (d *AtaDevice) OperationMode() string {
	code, ok := asInt(d.stateProp("OperationMode"))
	if !ok {
		return OperationModeUndefined
	}
	return ataOperationModes.decode(code)
}

// OperationModes returns the operation modes the device supports.
func (d *AtaDevice) OperationModes() []string {
	var modes []string
	if d.deviceBool("CanHeat") {
		modes = append(modes, OperationModeHeat)
	}
	if d.deviceBool("CanDry") {
		modes = append(modes, OperationModeDry)
	}
	if d.deviceBool("CanCool") {
		modes = append(modes, OperationModeCool)
	}
	modes = append(modes, OperationModeFanOnly)
	if d.deviceBool("ModelSupportsAuto") {
		modes = append(modes, OperationModeHeatCool)
	}
	return modes
}

// FanSpeed returns the currently active fan speed, or nil before the
// first poll.
func (d *AtaDevice) FanSpeed() *string {
	code, ok := asInt(d.stateProp("SetFanSpeed"))
	if !ok {
		return nil
	}
	label := ataFanSpeedLabel(code)
	return &label
}

// FanSpeeds returns the fan speeds the device supports.
//
// The count comes from the state record's NumberOfFanSpeeds; MELCloud
// does not know the device's own control naming, so speeds are plain
// "1".."N" with an optional "auto".
func (d *AtaDevice) FanSpeeds() []string {
	if !d.polled() {
		return nil
	}
	var speeds []string
	if d.deviceBool("HasAutomaticFanSpeed") {
		speeds = append(speeds, FanSpeedAuto)
	}
	count, _ := asInt(d.stateProp("NumberOfFanSpeeds"))
	for num := 1; num <= count; num++ {
		speeds = append(speeds, ataFanSpeedLabel(num))
	}
	return speeds
}

// VaneHorizontal returns the horizontal vane position.
func (d *AtaDevice) VaneHorizontal() *string {
	code, ok := asInt(d.stateProp("VaneHorizontal"))
	if !ok {
		return nil
	}
	label := horizontalVanePositions.decode(code)
	return &label
}

// VaneHorizontalPositions returns the selectable horizontal vane
// positions.
func (d *AtaDevice) VaneHorizontalPositions() []string {
	if b, _ := d.confRoot()["HideVaneControls"].(bool); b {
		return []string{}
	}
	if !d.deviceBool("ModelSupportsVaneHorizontal") {
		return []string{}
	}

	positions := []string{
		VanePositionAuto,
		VanePosition1Left,
		VanePosition2,
		VanePosition3,
		VanePosition4,
		VanePosition5Right,
		VanePositionSplit,
	}
	if d.deviceBool("SwingFunction") {
		positions = append(positions, VanePositionSwing)
	}
	return positions
}

// VaneVertical returns the vertical vane position.
func (d *AtaDevice) VaneVertical() *string {
	code, ok := asInt(d.stateProp("VaneVertical"))
	if !ok {
		return nil
	}
	label := verticalVanePositions.decode(code)
	return &label
}

// VaneVerticalPositions returns the selectable vertical vane positions.
func (d *AtaDevice) VaneVerticalPositions() []string {
	if b, _ := d.confRoot()["HideVaneControls"].(bool); b {
		return []string{}
	}
	if !d.deviceBool("ModelSupportsVaneVertical") {
		return []string{}
	}

	positions := []string{
		VanePositionAuto,
		VanePosition1Up,
		VanePosition2,
		VanePosition3,
		VanePosition4,
		VanePosition5Down,
	}
	if d.deviceBool("SwingFunction") {
		positions = append(positions, VanePositionSwing)
	}
	return positions
}

// HasEnergyConsumedMeter reports whether the device meters its energy
// consumption.
func (d *AtaDevice) HasEnergyConsumedMeter() bool {
	return d.deviceBool("HasEnergyConsumedMeter")
}

// TotalEnergyConsumed returns total consumed energy as kWh.
//
// The cloud updates this reading slowly and inconsistently; observed
// intervals vary between 1.5 and 3 hours.
func (d *AtaDevice) TotalEnergyConsumed() *float64 {
	reading := d.deviceFloat("CurrentEnergyConsumed")
	if reading == nil {
		return nil
	}
	kwh := *reading / 1000.0
	return &kwh
}

// ActualFanSpeed returns the fan speed the unit is actually running at;
// 0 means stopped, not auto.
func (d *AtaDevice) ActualFanSpeed() *string {
	if !d.polled() {
		return nil
	}
	code, ok := asInt(d.confDevice()["ActualFanSpeed"])
	if !ok {
		code = -1
	}
	label := strconv.Itoa(code)
	return &label
}

// Snapshot returns a normalized view of the current control state, or
// nil before the first poll.
func (d *AtaDevice) Snapshot() map[string]any {
	if !d.polled() {
		return nil
	}
	snap := map[string]any{
		"kind":           KindAta,
		"operation_mode": d.OperationMode(),
	}
	if p := d.Power(); p != nil {
		snap["power"] = *p
	}
	if t := d.RoomTemperature(); t != nil {
		snap["room_temperature"] = *t
	}
	if t := d.TargetTemperature(); t != nil {
		snap["target_temperature"] = *t
	}
	if s := d.FanSpeed(); s != nil {
		snap["fan_speed"] = *s
	}
	if v := d.VaneHorizontal(); v != nil {
		snap["vane_horizontal"] = *v
	}
	if v := d.VaneVertical(); v != nil {
		snap["vane_vertical"] = *v
	}
	return snap
}
