package melcloud

import (
	"context"
	"fmt"
	"time"
)

// Writable properties of an air-to-water unit. The cool flow labels
// are kept verbatim from the established property vocabulary, odd as
// they read; renaming them would break every existing caller.
const (
	PropertyTargetTankTemperature          = "target_tank_temperature"
	PropertyZone1TargetTemperature         = "zone_1_target_temperature"
	PropertyZone2TargetTemperature         = "zone_2_target_temperature"
	PropertyZone1TargetHeatFlowTemperature = "zone_1_target_heat_flow_temperature"
	PropertyZone2TargetHeatFlowTemperature = "zone_2_target_heat_flow_temperature"
	PropertyZone1TargetCoolFlowTemperature = "zone_1_target_heat_cool_temperature"
	PropertyZone2TargetCoolFlowTemperature = "zone_2_target_heat_cool_temperature"
	PropertyZone1OperationMode             = "zone_1_operation_mode"
	PropertyZone2OperationMode             = "zone_2_operation_mode"
)

// Device-level operation modes: the unit runs its own schedule unless
// hot water production is forced.
const (
	OperationModeAuto          = "auto"
	OperationModeForceHotWater = "force_hot_water"
)

// Status labels describing what the unit is doing right now.
const (
	StatusIdle       = "idle"
	StatusHeatWater  = "heat_water"
	StatusHeatZones  = "heat_zones"
	StatusCool       = "cool"
	StatusDefrost    = "defrost"
	StatusStandby    = "standby"
	StatusLegionella = "legionella"
	StatusUnknown    = "unknown"
)

// Zone operation mode labels.
const (
	ZoneOperationModeHeatThermostat = "heat-thermostat"
	ZoneOperationModeHeatFlow       = "heat-flow"
	ZoneOperationModeCurve          = "curve"
	ZoneOperationModeCoolThermostat = "cool-thermostat"
	ZoneOperationModeCoolFlow       = "cool-flow"
	ZoneOperationModeUnknown        = "unknown"
)

// Zone status labels.
const (
	ZoneStatusHeat    = "heat"
	ZoneStatusIdle    = "idle"
	ZoneStatusCool    = "cool"
	ZoneStatusUnknown = "unknown"
)

var atwStatuses = enumCodec{
	labels: map[int]string{
		0: StatusIdle,
		1: StatusHeatWater,
		2: StatusHeatZones,
		3: StatusCool,
		4: StatusDefrost,
		5: StatusStandby,
		6: StatusLegionella,
	},
	sentinel: StatusUnknown,
}

var zoneOperationModes = enumCodec{
	labels: map[int]string{
		0: ZoneOperationModeHeatThermostat,
		1: ZoneOperationModeHeatFlow,
		2: ZoneOperationModeCurve,
		3: ZoneOperationModeCoolThermostat,
		4: ZoneOperationModeCoolFlow,
	},
	sentinel: ZoneOperationModeUnknown,
}

// atwRoundedTempRule handles the many ATW properties that are all
// "round to increment, write one field, set one flag group".
func atwRoundedTempRule(property, field string, flag uint64) writeRule {
	return writeRule{flag: flag, apply: func(d *Device, state map[string]any, value any) error {
		t, err := requireFloat(property, value)
		if err != nil {
			return err
		}
		state[field] = d.RoundTemperature(t)
		return nil
	}}
}

// atwWrites is the ATW write table. The non-contiguous bit groups are
// historical service baggage and must be reproduced exactly.
func atwWrites() writeTable {
	return writeTable{
		PropertyTargetTankTemperature: atwRoundedTempRule(
			PropertyTargetTankTemperature, "SetTankWaterTemperature", 0x1000000000020),
		PropertyZone1TargetTemperature: atwRoundedTempRule(
			PropertyZone1TargetTemperature, "SetTemperatureZone1", 0x200000080),
		PropertyZone2TargetTemperature: atwRoundedTempRule(
			PropertyZone2TargetTemperature, "SetTemperatureZone2", 0x800000200),
		PropertyZone1TargetHeatFlowTemperature: atwRoundedTempRule(
			PropertyZone1TargetHeatFlowTemperature, "SetHeatFlowTemperatureZone1", 0x1000000000000),
		PropertyZone2TargetHeatFlowTemperature: atwRoundedTempRule(
			PropertyZone2TargetHeatFlowTemperature, "SetHeatFlowTemperatureZone2", 0x1000000000000),
		PropertyZone1TargetCoolFlowTemperature: atwRoundedTempRule(
			PropertyZone1TargetCoolFlowTemperature, "SetCoolFlowTemperatureZone1", 0x1000000000000),
		PropertyZone2TargetCoolFlowTemperature: atwRoundedTempRule(
			PropertyZone2TargetCoolFlowTemperature, "SetCoolFlowTemperatureZone2", 0x1000000000000),
		PropertyOperationMode: {flag: 0x10000, apply: func(_ *Device, state map[string]any, value any) error {
			label, err := requireString(PropertyOperationMode, value)
			if err != nil {
				return err
			}
			if label != OperationModeAuto && label != OperationModeForceHotWater {
				return fmt.Errorf("%w: %q", ErrInvalidEnumValue, label)
			}
			state["ForcedHotWaterMode"] = label == OperationModeForceHotWater
			return nil
		}},
		PropertyZone1OperationMode: atwZoneModeRule(PropertyZone1OperationMode, "OperationModeZone1", 0x08),
		PropertyZone2OperationMode: atwZoneModeRule(PropertyZone2OperationMode, "OperationModeZone2", 0x10),
	}
}

func atwZoneModeRule(property, field string, flag uint64) writeRule {
	return writeRule{flag: flag, apply: func(_ *Device, state map[string]any, value any) error {
		label, err := requireString(property, value)
		if err != nil {
			return err
		}
		code, err := zoneOperationModes.encode(label)
		if err != nil {
			return err
		}
		state[field] = code
		return nil
	}}
}

// AtwDevice is an air-to-water unit (DeviceType 1): a heat pump with a
// hot water tank and one or two heating zones.
type AtwDevice struct {
	*Device
}

func newAtwDevice(conf map[string]any, transport Transport, debounce time.Duration, useFahrenheit bool) *AtwDevice {
	return &AtwDevice{Device: newDevice(conf, transport, debounce, useFahrenheit, atwWrites())}
}

// TankTemperature returns the tank water temperature.
func (d *AtwDevice) TankTemperature() *float64 {
	return d.stateFloat("TankWaterTemperature")
}

// TargetTankTemperature returns the target tank water temperature.
func (d *AtwDevice) TargetTankTemperature() *float64 {
	return d.stateFloat("SetTankWaterTemperature")
}

// TargetTankTemperatureMin returns the minimum target tank water
// temperature. The API does not expose this; a fixed value is used.
func (d *AtwDevice) TargetTankTemperatureMin() float64 {
	return 40.0
}

// TargetTankTemperatureMax returns the maximum target tank water
// temperature.
func (d *AtwDevice) TargetTankTemperatureMax() *float64 {
	return d.deviceFloat("MaxTankTemperature")
}

// OutsideTemperature returns the outdoor temperature reported by the
// device. The sensor reports with 1 degree accuracy and updates only
// every couple of hours.
func (d *AtwDevice) OutsideTemperature() *float64 {
	return d.stateFloat("OutdoorTemperature")
}

// FlowTemperatureBoiler returns the boiler flow temperature.
func (d *AtwDevice) FlowTemperatureBoiler() *float64 {
	return d.deviceFloat("FlowTemperatureBoiler")
}

// ReturnTemperatureBoiler returns the boiler return flow temperature.
func (d *AtwDevice) ReturnTemperatureBoiler() *float64 {
	return d.deviceFloat("ReturnTemperatureBoiler")
}

// MixingTankTemperature returns the mixing tank temperature.
func (d *AtwDevice) MixingTankTemperature() *float64 {
	return d.deviceFloat("MixingTankWaterTemperature")
}

// Status returns what the unit is currently doing to meet its control
// values (the cloud reuses the OperationMode state field for this).
func (d *AtwDevice) Status() string {
	code, ok := asInt(d.stateProp("OperationMode"))
	if !ok {
		return StatusUnknown
	}
	return atwStatuses.decode(code)
}

// OperationMode returns the active device operation mode, or nil
// before the first poll.
func (d *AtwDevice) OperationMode() *string {
	forced := d.stateBool("ForcedHotWaterMode")
	if forced == nil {
		if !d.polled() {
			return nil
		}
		mode := OperationModeAuto
		return &mode
	}
	mode := OperationModeAuto
	if *forced {
		mode = OperationModeForceHotWater
	}
	return &mode
}

// OperationModes returns the available device operation modes.
func (d *AtwDevice) OperationModes() []string {
	return []string{OperationModeAuto, OperationModeForceHotWater}
}

// HolidayMode returns the holiday mode status.
func (d *AtwDevice) HolidayMode() *bool {
	return d.stateBool("HolidayMode")
}

// DailyHeatingEnergyConsumed returns the heating energy consumed on
// the reported day, in kWh.
func (d *AtwDevice) DailyHeatingEnergyConsumed() float64 {
	if f := d.deviceFloat("DailyHeatingEnergyConsumed"); f != nil {
		return *f
	}
	return 0.0
}

// DailyCoolingEnergyConsumed returns the cooling energy consumed on
// the reported day, in kWh.
func (d *AtwDevice) DailyCoolingEnergyConsumed() float64 {
	if f := d.deviceFloat("DailyCoolingEnergyConsumed"); f != nil {
		return *f
	}
	return 0.0
}

// DailyHotWaterEnergyConsumed returns the hot water energy consumed on
// the reported day, in kWh.
func (d *AtwDevice) DailyHotWaterEnergyConsumed() float64 {
	if f := d.deviceFloat("DailyHotWaterEnergyConsumed"); f != nil {
		return *f
	}
	return 0.0
}

// DailyEnergyConsumedDate returns the day the daily energy figures
// refer to, or nil when the cloud has not reported one.
func (d *AtwDevice) DailyEnergyConsumedDate() *time.Time {
	raw, ok := d.confDevice()["DailyEnergyConsumedDate"].(string)
	if !ok {
		return nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05", raw)
	if err != nil {
		return nil
	}
	return &ts
}

// Zones returns the zones controlled by this device.
//
// The list is capability gated: zones without a thermostat are not
// returned and a fixed zone count is never assumed.
func (d *AtwDevice) Zones() []*Zone {
	var zones []*Zone
	if d.deviceBool("HasThermostatZone1") {
		zones = append(zones, &Zone{device: d, index: 1})
	}
	if d.deviceBool("HasZone2") && d.deviceBool("HasThermostatZone2") {
		zones = append(zones, &Zone{device: d, index: 2})
	}
	return zones
}

// Snapshot returns a normalized view of the current control state, or
// nil before the first poll.
func (d *AtwDevice) Snapshot() map[string]any {
	if !d.polled() {
		return nil
	}
	snap := map[string]any{
		"kind":   KindAtw,
		"status": d.Status(),
	}
	if p := d.Power(); p != nil {
		snap["power"] = *p
	}
	if m := d.OperationMode(); m != nil {
		snap["operation_mode"] = *m
	}
	if t := d.TankTemperature(); t != nil {
		snap["tank_temperature"] = *t
	}
	if t := d.TargetTankTemperature(); t != nil {
		snap["target_tank_temperature"] = *t
	}
	if t := d.OutsideTemperature(); t != nil {
		snap["outside_temperature"] = *t
	}

	var zones []map[string]any
	for _, zone := range d.Zones() {
		z := map[string]any{
			"zone":           zone.Index(),
			"name":           zone.Name(),
			"status":         zone.Status(),
			"operation_mode": zone.OperationMode(),
		}
		if t := zone.RoomTemperature(); t != nil {
			z["room_temperature"] = *t
		}
		if t := zone.TargetTemperature(); t != nil {
			z["target_temperature"] = *t
		}
		zones = append(zones, z)
	}
	if zones != nil {
		snap["zones"] = zones
	}
	return snap
}

// Zone is a climate sub-area controlled by an air-to-water device.
//
// A Zone holds no state of its own: every accessor reads through to
// the owning device's current records using the zone index, so values
// always reflect the latest poll.
type Zone struct {
	device *AtwDevice
	index  int
}

// Index returns the 1-based zone number.
func (z *Zone) Index() int { return z.index }

// zoneField builds the per-zone state field name.
func (z *Zone) zoneField(prefix string) string {
	return fmt.Sprintf("%sZone%d", prefix, z.index)
}

// Name returns the zone name. If none is configured "Zone n" is
// generated.
func (z *Zone) Name() string {
	if name, ok := z.device.confRoot()[fmt.Sprintf("Zone%dName", z.index)].(string); ok && name != "" {
		return name
	}
	return fmt.Sprintf("Zone %d", z.index)
}

// Prohibit returns the prohibit flag of the zone.
func (z *Zone) Prohibit() *bool {
	return z.device.stateBool(z.zoneField("Prohibit"))
}

// Status returns the zone's current status: "heat", "cool" or "idle".
func (z *Zone) Status() string {
	if !z.device.polled() {
		return ZoneStatusUnknown
	}
	if idle := z.device.stateBool(z.zoneField("Idle")); idle != nil && *idle {
		return ZoneStatusIdle
	}

	switch z.OperationMode() {
	case ZoneOperationModeHeatThermostat, ZoneOperationModeHeatFlow, ZoneOperationModeCurve:
		return ZoneStatusHeat
	case ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow:
		return ZoneStatusCool
	default:
		return ZoneStatusUnknown
	}
}

// RoomTemperature returns the zone's room temperature.
func (z *Zone) RoomTemperature() *float64 {
	return z.device.stateFloat(z.zoneField("RoomTemperature"))
}

// TargetTemperature returns the zone's target temperature.
func (z *Zone) TargetTemperature() *float64 {
	return z.device.stateFloat(z.zoneField("SetTemperature"))
}

// SetTargetTemperature sets the target temperature for this zone.
func (z *Zone) SetTargetTemperature(ctx context.Context, target float64) error {
	prop := PropertyZone1TargetTemperature
	if z.index == 2 {
		prop = PropertyZone2TargetTemperature
	}
	return z.device.Set(ctx, map[string]any{prop: target})
}

// FlowTemperature returns the current flow temperature. This reading
// lives in the conf record and refreshes slower than the state poll.
func (z *Zone) FlowTemperature() *float64 {
	return z.device.deviceFloat("FlowTemperature")
}

// ReturnTemperature returns the current return flow temperature.
func (z *Zone) ReturnTemperature() *float64 {
	return z.device.deviceFloat("ReturnTemperature")
}

// TargetFlowTemperature returns the target flow temperature of the
// currently active operation mode.
func (z *Zone) TargetFlowTemperature() *float64 {
	switch z.OperationMode() {
	case ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow:
		return z.TargetCoolFlowTemperature()
	default:
		return z.TargetHeatFlowTemperature()
	}
}

// TargetHeatFlowTemperature returns the target heat flow temperature.
func (z *Zone) TargetHeatFlowTemperature() *float64 {
	return z.device.stateFloat(z.zoneField("SetHeatFlowTemperature"))
}

// TargetCoolFlowTemperature returns the target cool flow temperature.
func (z *Zone) TargetCoolFlowTemperature() *float64 {
	return z.device.stateFloat(z.zoneField("SetCoolFlowTemperature"))
}

// SetTargetFlowTemperature sets the flow temperature target of the
// currently active operation mode.
func (z *Zone) SetTargetFlowTemperature(ctx context.Context, target float64) error {
	switch z.OperationMode() {
	case ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow:
		return z.SetTargetCoolFlowTemperature(ctx, target)
	default:
		return z.SetTargetHeatFlowTemperature(ctx, target)
	}
}

// SetTargetHeatFlowTemperature sets the heat flow temperature target.
func (z *Zone) SetTargetHeatFlowTemperature(ctx context.Context, target float64) error {
	prop := PropertyZone1TargetHeatFlowTemperature
	if z.index == 2 {
		prop = PropertyZone2TargetHeatFlowTemperature
	}
	return z.device.Set(ctx, map[string]any{prop: target})
}

// SetTargetCoolFlowTemperature sets the cool flow temperature target.
func (z *Zone) SetTargetCoolFlowTemperature(ctx context.Context, target float64) error {
	prop := PropertyZone1TargetCoolFlowTemperature
	if z.index == 2 {
		prop = PropertyZone2TargetCoolFlowTemperature
	}
	return z.device.Set(ctx, map[string]any{prop: target})
}

// OperationMode returns the zone's current operation mode.
func (z *Zone) OperationMode() string {
	code, ok := asInt(z.device.stateProp(z.zoneField("OperationMode")))
	if !ok {
		return ZoneOperationModeUnknown
	}
	return zoneOperationModes.decode(code)
}

// OperationModes returns the operation modes available to the zone,
// gated on the device's heating and cooling capabilities.
func (z *Zone) OperationModes() []string {
	var modes []string
	if z.device.deviceBool("CanHeat") {
		modes = append(modes,
			ZoneOperationModeHeatThermostat,
			ZoneOperationModeHeatFlow,
			ZoneOperationModeCurve,
		)
	}
	if z.device.deviceBool("CanCool") {
		modes = append(modes,
			ZoneOperationModeCoolThermostat,
			ZoneOperationModeCoolFlow,
		)
	}
	return modes
}

// SetOperationMode changes the zone operation mode. The mode must be
// one of the labels returned by OperationModes.
func (z *Zone) SetOperationMode(ctx context.Context, mode string) error {
	prop := PropertyZone1OperationMode
	if z.index == 2 {
		prop = PropertyZone2OperationMode
	}
	return z.device.Set(ctx, map[string]any{prop: mode})
}
