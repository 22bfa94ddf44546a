package melcloud

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func ervConfFixture() map[string]any {
	return map[string]any{
		"DeviceID":   33301,
		"BuildingID": 12345,
		"DeviceName": "Lossnay",
		"Device": map[string]any{
			"DeviceType":                float64(3),
			"ActualVentilationMode":     float64(0),
			"ActualSupplyFanSpeed":      float64(2),
			"ActualExhaustFanSpeed":     float64(2),
			"RoomCO2Level":              680.0,
			"CoreMaintenanceRequired":   false,
			"FilterMaintenanceRequired": true,
			"WifiSignalStrength":        -61.0,
			"HasError":                  false,
			"ErrorCode":                 float64(8000),
		},
	}
}

func ervStateFixture() map[string]any {
	return map[string]any{
		"DeviceID":          float64(33301),
		"DeviceType":        float64(3),
		"EffectiveFlags":    float64(0),
		"Power":             true,
		"VentilationMode":   float64(2),
		"SetFanSpeed":       float64(3),
		"NumberOfFanSpeeds": float64(4),
		"HasCO2Sensor":      true,
		"RoomTemperature":   21.0,
		"OutdoorTemperature": 12.5,
	}
}

func newTestErvDevice(t *testing.T) (*ErvDevice, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{
		confs: []map[string]any{ervConfFixture()},
		state: ervStateFixture(),
		units: []map[string]any{},
	}
	device := newErvDevice(ervConfFixture(), transport, testDebounce, false)
	return device, transport
}

func polledErvDevice(t *testing.T) (*ErvDevice, *fakeTransport) {
	t.Helper()
	device, transport := newTestErvDevice(t)
	if err := device.Update(context.Background()); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	return device, transport
}

// =============================================================================
// Codecs
// =============================================================================

func TestVentilationModeCodec(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, VentilationModeRecovery},
		{1, VentilationModeBypass},
		{2, VentilationModeAuto},
		{9, VentilationModeUndefined},
	}

	for _, tt := range tests {
		if got := ventilationModes.decode(tt.code); got != tt.want {
			t.Errorf("decode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}

	if _, err := ventilationModes.encode("turbo"); !errors.Is(err, ErrInvalidEnumValue) {
		t.Errorf("encode(turbo) error = %v, want ErrInvalidEnumValue", err)
	}
}

func TestErvFanSpeedLabels(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{-1, FanSpeedUndefined},
		{0, FanSpeedStopped},
		{3, "3"},
	}

	for _, tt := range tests {
		if got := ervFanSpeedLabel(tt.code); got != tt.want {
			t.Errorf("ervFanSpeedLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}

	code, err := ervFanSpeedCode(FanSpeedStopped)
	if err != nil || code != 0 {
		t.Errorf("ervFanSpeedCode(0) = %d, %v; want 0, nil", code, err)
	}
	code, err = ervFanSpeedCode(FanSpeedUndefined)
	if err != nil || code != -1 {
		t.Errorf("ervFanSpeedCode(undefined) = %d, %v; want -1, nil", code, err)
	}
	if _, err := ervFanSpeedCode("whisper"); !errors.Is(err, ErrInvalidEnumValue) {
		t.Errorf("ervFanSpeedCode(whisper) error = %v, want ErrInvalidEnumValue", err)
	}
}

// =============================================================================
// Write table
// =============================================================================

func TestErvWriteTable(t *testing.T) {
	device, _ := newTestErvDevice(t)

	state := map[string]any{}
	if err := device.applyWrite(state, PropertyVentilationMode, VentilationModeBypass); err != nil {
		t.Fatalf("applyWrite(ventilation_mode) returned error: %v", err)
	}
	if got := state["VentilationMode"]; got != 1 {
		t.Errorf("VentilationMode = %v, want 1", got)
	}
	if got := recordFlags(state); got != 0x04 {
		t.Errorf("flags = %#x, want 0x04", got)
	}

	if err := device.applyWrite(state, PropertyFanSpeed, "2"); err != nil {
		t.Fatalf("applyWrite(fan_speed) returned error: %v", err)
	}
	if got := state["SetFanSpeed"]; got != 2 {
		t.Errorf("SetFanSpeed = %v, want 2", got)
	}
	if got := recordFlags(state); got != 0x04|0x08 {
		t.Errorf("flags = %#x, want %#x", got, 0x04|0x08)
	}
}

func TestErvSubmissionRejectedByService(t *testing.T) {
	// There is no Set endpoint for this device type; the transport
	// reports the rejection to the waiting caller.
	device, transport := polledErvDevice(t)
	transport.mu.Lock()
	transport.submitErr = ErrUnsupportedDevice
	transport.mu.Unlock()

	err := device.Set(context.Background(), map[string]any{PropertyVentilationMode: VentilationModeAuto})
	if !errors.Is(err, ErrUnsupportedDevice) {
		t.Errorf("Set() error = %v, want ErrUnsupportedDevice", err)
	}
}

// =============================================================================
// Accessors
// =============================================================================

func TestErvReadings(t *testing.T) {
	device, _ := polledErvDevice(t)

	if temp := device.RoomTemperature(); temp == nil || *temp != 21.0 {
		t.Errorf("RoomTemperature() = %v, want 21.0", temp)
	}
	if temp := device.OutdoorTemperature(); temp == nil || *temp != 12.5 {
		t.Errorf("OutdoorTemperature() = %v, want 12.5", temp)
	}
	if got := device.VentilationMode(); got != VentilationModeAuto {
		t.Errorf("VentilationMode() = %q, want auto", got)
	}
	if got := device.ActualVentilationMode(); got != VentilationModeRecovery {
		t.Errorf("ActualVentilationMode() = %q, want recovery", got)
	}
	if speed := device.FanSpeed(); speed == nil || *speed != "3" {
		t.Errorf("FanSpeed() = %v, want 3", speed)
	}
	if speed := device.ActualSupplyFanSpeed(); speed == nil || *speed != "2" {
		t.Errorf("ActualSupplyFanSpeed() = %v, want 2", speed)
	}
	if signal := device.WifiSignal(); signal == nil || *signal != -61.0 {
		t.Errorf("WifiSignal() = %v, want -61.0", signal)
	}
	if device.HasError() {
		t.Error("HasError() = true, want false")
	}
	if code := device.ErrorCode(); code == nil || *code != 8000 {
		t.Errorf("ErrorCode() = %v, want 8000", code)
	}
	if !device.FilterMaintenanceRequired() {
		t.Error("FilterMaintenanceRequired() = false, want true")
	}
	if device.CoreMaintenanceRequired() {
		t.Error("CoreMaintenanceRequired() = true, want false")
	}
}

func TestErvFanSpeeds(t *testing.T) {
	device, _ := polledErvDevice(t)

	want := []string{"1", "2", "3", "4"}
	if got := device.FanSpeeds(); !reflect.DeepEqual(got, want) {
		t.Errorf("FanSpeeds() = %v, want %v", got, want)
	}
}

func TestErvRoomCO2Level(t *testing.T) {
	device, transport := polledErvDevice(t)

	if level := device.RoomCO2Level(); level == nil || *level != 680.0 {
		t.Errorf("RoomCO2Level() = %v, want 680.0", level)
	}

	transport.mu.Lock()
	transport.state["HasCO2Sensor"] = false
	transport.mu.Unlock()
	if err := device.Update(context.Background()); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if level := device.RoomCO2Level(); level != nil {
		t.Errorf("RoomCO2Level() = %v, want nil without a sensor", level)
	}
}

func TestErvSnapshot(t *testing.T) {
	device, _ := newTestErvDevice(t)

	if device.Snapshot() != nil {
		t.Fatal("Snapshot() should be nil before the first poll")
	}
	if err := device.Update(context.Background()); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	snap := device.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot() returned nil after poll")
	}
	if snap["kind"] != KindErv {
		t.Errorf("kind = %v, want erv", snap["kind"])
	}
	if snap["ventilation_mode"] != VentilationModeAuto {
		t.Errorf("ventilation_mode = %v, want auto", snap["ventilation_mode"])
	}
	if snap["fan_speed"] != "3" {
		t.Errorf("fan_speed = %v, want 3", snap["fan_speed"])
	}
	if snap["room_co2_level"] != 680.0 {
		t.Errorf("room_co2_level = %v, want 680.0", snap["room_co2_level"])
	}
}
