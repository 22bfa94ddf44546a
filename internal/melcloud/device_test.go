package melcloud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport for device tests. It records
// every submission and serves canned conf and state records.
type fakeTransport struct {
	mu           sync.Mutex
	confs        []map[string]any
	account      map[string]any
	state        map[string]any
	units        []map[string]any
	stateErr     error
	submitErr    error
	submissions  []map[string]any
	confUpdates  int
	stateFetches int
	unitFetches  int
}

func (f *fakeTransport) UpdateConfs(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confUpdates++
	return nil
}

func (f *fakeTransport) DeviceConfs() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confs
}

func (f *fakeTransport) Account() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account
}

func (f *fakeTransport) FetchDeviceState(_ context.Context, _, _ int) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateFetches++
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return cloneRecord(f.state), nil
}

func (f *fakeTransport) SetDeviceState(_ context.Context, state map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submissions = append(f.submissions, cloneRecord(state))
	return cloneRecord(state), nil
}

func (f *fakeTransport) FetchDeviceUnits(_ context.Context, _ int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unitFetches++
	return f.units, nil
}

func (f *fakeTransport) submitted() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.submissions))
	copy(out, f.submissions)
	return out
}

// testDebounce keeps the coalescing window short enough for tests but
// long enough to merge deliberately staggered calls.
const testDebounce = 40 * time.Millisecond

func ataConfFixture() map[string]any {
	return map[string]any{
		"DeviceID":     67890,
		"BuildingID":   12345,
		"DeviceName":   "Living Room",
		"MacAddress":   "a1:b2:c3:d4:e5:f6",
		"SerialNumber": "1704120321",
		"AccessLevel":  float64(0),
		"Device": map[string]any{
			"DeviceType":           float64(0),
			"TemperatureIncrement": 0.5,
			"CanHeat":              true,
			"CanDry":               true,
			"CanCool":              true,
			"ModelSupportsAuto":    true,
			"HasAutomaticFanSpeed": true,
		},
	}
}

func ataStateFixture() map[string]any {
	return map[string]any{
		"DeviceID":          float64(67890),
		"DeviceType":        float64(0),
		"EffectiveFlags":    float64(0),
		"Power":             true,
		"OperationMode":     float64(1),
		"RoomTemperature":   21.5,
		"SetTemperature":    22.0,
		"SetFanSpeed":       float64(2),
		"NumberOfFanSpeeds": float64(5),
		"VaneHorizontal":    float64(0),
		"VaneVertical":      float64(7),
		"LastCommunication": "2026-08-30T11:57:24.233",
	}
}

func newTestAtaDevice(t *testing.T) (*AtaDevice, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{
		confs: []map[string]any{ataConfFixture()},
		state: ataStateFixture(),
		units: []map[string]any{
			{"Model": "MSZ-AP25VGK", "ModelNumber": "1234", "SerialNumber": "ABC123"},
		},
	}
	device := newAtaDevice(ataConfFixture(), transport, testDebounce, false)
	return device, transport
}

// =============================================================================
// Update
// =============================================================================

func TestUpdate(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()

	if device.Power() != nil {
		t.Fatal("Power() should be nil before the first poll")
	}
	if device.LastSeen() != nil {
		t.Fatal("LastSeen() should be nil before the first poll")
	}

	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	if p := device.Power(); p == nil || !*p {
		t.Errorf("Power() = %v, want true", p)
	}
	if temp := device.RoomTemperature(); temp == nil || *temp != 21.5 {
		t.Errorf("RoomTemperature() = %v, want 21.5", temp)
	}
	if seen := device.LastSeen(); seen == nil {
		t.Error("LastSeen() should parse after poll")
	} else if seen.Hour() != 11 || seen.Minute() != 57 {
		t.Errorf("LastSeen() = %v, want 11:57", seen)
	}

	units := device.Units()
	if len(units) != 1 || units[0].Model != "MSZ-AP25VGK" {
		t.Errorf("Units() = %+v, want one MSZ-AP25VGK entry", units)
	}

	// Unit info is fetched once, not on every poll.
	if err := device.Update(ctx); err != nil {
		t.Fatalf("second Update() returned error: %v", err)
	}
	transport.mu.Lock()
	fetches := transport.unitFetches
	transport.mu.Unlock()
	if fetches != 1 {
		t.Errorf("unit fetches = %d, want 1", fetches)
	}
}

func TestUpdateGuestAccessSkipsUnits(t *testing.T) {
	conf := ataConfFixture()
	conf["AccessLevel"] = float64(accessLevelGuest)
	transport := &fakeTransport{
		confs: []map[string]any{conf},
		state: ataStateFixture(),
	}
	device := newAtaDevice(conf, transport, testDebounce, false)

	if err := device.Update(context.Background()); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	transport.mu.Lock()
	fetches := transport.unitFetches
	transport.mu.Unlock()
	if fetches != 0 {
		t.Errorf("unit fetches = %d, want 0 for guest access", fetches)
	}
	if device.Units() != nil {
		t.Error("Units() should be nil for guest access")
	}
}

func TestUpdateConfNotFound(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	transport.mu.Lock()
	transport.confs = nil
	transport.mu.Unlock()

	err := device.Update(context.Background())
	if !errors.Is(err, ErrConfNotFound) {
		t.Errorf("Update() error = %v, want ErrConfNotFound", err)
	}
}

// =============================================================================
// Set: validation
// =============================================================================

func TestSetInvalidProperty(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	err := device.Set(ctx, map[string]any{"warp_drive": 9})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Set(warp_drive) error = %v, want ErrInvalidProperty", err)
	}

	// The rejection is synchronous; nothing was scheduled.
	time.Sleep(2 * testDebounce)
	if got := len(transport.submitted()); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}
}

func TestSetInvalidEnumValue(t *testing.T) {
	device, _ := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	err := device.Set(ctx, map[string]any{PropertyOperationMode: "bogus"})
	if !errors.Is(err, ErrInvalidEnumValue) {
		t.Errorf("Set(operation_mode=bogus) error = %v, want ErrInvalidEnumValue", err)
	}
}

func TestSetPowerRequiresBool(t *testing.T) {
	device, _ := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	err := device.Set(ctx, map[string]any{PropertyPower: "on"})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Set(power=\"on\") error = %v, want ErrInvalidProperty", err)
	}
}

func TestSetEmptyIsNoOp(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	if err := device.Set(ctx, nil); err != nil {
		t.Errorf("Set(nil) returned error: %v", err)
	}
	time.Sleep(2 * testDebounce)
	if got := len(transport.submitted()); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}
}

func TestSetBeforePoll(t *testing.T) {
	device, transport := newTestAtaDevice(t)

	err := device.Set(context.Background(), map[string]any{PropertyTargetTemperature: 22.0})
	if !errors.Is(err, ErrStateNeverPolled) {
		t.Errorf("Set() before poll error = %v, want ErrStateNeverPolled", err)
	}
	if got := len(transport.submitted()); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}
}

// =============================================================================
// Set: coalescing
// =============================================================================

func TestSetCoalescesIntoOneSubmission(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- device.Set(ctx, map[string]any{PropertyTargetTemperature: 24.3})
	}()
	time.Sleep(testDebounce / 4)

	if err := device.Set(ctx, map[string]any{PropertyOperationMode: OperationModeCool}); err != nil {
		t.Fatalf("second Set() returned error: %v", err)
	}
	if err := <-firstErr; err != nil {
		t.Fatalf("first Set() returned error: %v", err)
	}

	subs := transport.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1 consolidated submission", len(subs))
	}

	sub := subs[0]
	if got := sub["SetTemperature"]; got != 24.5 {
		t.Errorf("SetTemperature = %v, want 24.5 after rounding", got)
	}
	if got := sub["OperationMode"]; got != 3 {
		t.Errorf("OperationMode = %v, want 3", got)
	}
	if got := recordFlags(sub); got != 0x02|0x04 {
		t.Errorf("EffectiveFlags = %#x, want %#x", got, 0x02|0x04)
	}
	if pending, _ := sub[fieldHasPendingCommand].(bool); !pending {
		t.Error("HasPendingCommand should be set on the submission")
	}

	// The response replaced the device state.
	if temp := device.TargetTemperature(); temp == nil || *temp != 24.5 {
		t.Errorf("TargetTemperature() = %v, want 24.5 from response", temp)
	}
}

func TestSetLatestValueWins(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- device.Set(ctx, map[string]any{PropertyTargetTemperature: 20.0})
	}()
	time.Sleep(testDebounce / 4)

	if err := device.Set(ctx, map[string]any{PropertyTargetTemperature: 25.0}); err != nil {
		t.Fatalf("second Set() returned error: %v", err)
	}
	if err := <-firstErr; err != nil {
		t.Fatalf("first Set() returned error: %v", err)
	}

	subs := transport.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if got := subs[0]["SetTemperature"]; got != 25.0 {
		t.Errorf("SetTemperature = %v, want the later value 25.0", got)
	}
}

func TestSetSpacedCallsFlushSeparately(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	if err := device.Set(ctx, map[string]any{PropertyTargetTemperature: 23.0}); err != nil {
		t.Fatalf("first Set() returned error: %v", err)
	}
	if err := device.Set(ctx, map[string]any{PropertyOperationMode: OperationModeHeat}); err != nil {
		t.Fatalf("second Set() returned error: %v", err)
	}

	subs := transport.submitted()
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2", len(subs))
	}
	if got := recordFlags(subs[0]); got != 0x04 {
		t.Errorf("first EffectiveFlags = %#x, want 0x04", got)
	}
	// The accumulator seeds from the bitmask already on the state record,
	// and the service echoes submitted flags back, so the second flush
	// carries the first flush's bit as well.
	if got := recordFlags(subs[1]); got != 0x04|0x02 {
		t.Errorf("second EffectiveFlags = %#x, want 0x04|0x02", got)
	}

	// A poll replaces the state record and with it the carried flags.
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if err := device.Set(ctx, map[string]any{PropertyTargetTemperature: 24.0}); err != nil {
		t.Fatalf("third Set() returned error: %v", err)
	}
	subs = transport.submitted()
	if len(subs) != 3 {
		t.Fatalf("submissions = %d, want 3", len(subs))
	}
	if got := recordFlags(subs[2]); got != 0x04 {
		t.Errorf("EffectiveFlags after re-poll = %#x, want 0x04", got)
	}
}

func TestSetPower(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	if err := device.Set(ctx, map[string]any{PropertyPower: false}); err != nil {
		t.Fatalf("Set(power) returned error: %v", err)
	}

	subs := transport.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if power, _ := subs[0][fieldPower].(bool); power {
		t.Error("Power should be false in the submission")
	}
	if got := recordFlags(subs[0]); got != powerFlag {
		t.Errorf("EffectiveFlags = %#x, want %#x", got, powerFlag)
	}
	if p := device.Power(); p == nil || *p {
		t.Errorf("Power() = %v, want false from response", p)
	}
}

func TestSetFailureReachesAllWaiters(t *testing.T) {
	device, transport := newTestAtaDevice(t)
	ctx := context.Background()
	if err := device.Update(ctx); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	submitErr := errors.New("melcloud: boom")
	transport.mu.Lock()
	transport.submitErr = submitErr
	transport.mu.Unlock()

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- device.Set(ctx, map[string]any{PropertyTargetTemperature: 24.0})
	}()
	time.Sleep(testDebounce / 4)

	err2 := device.Set(ctx, map[string]any{PropertyOperationMode: OperationModeCool})
	err1 := <-firstErr
	if !errors.Is(err1, submitErr) {
		t.Errorf("first Set() error = %v, want submit error", err1)
	}
	if !errors.Is(err2, submitErr) {
		t.Errorf("second Set() error = %v, want submit error", err2)
	}

	// Local state is untouched by the failed flush.
	if temp := device.TargetTemperature(); temp == nil || *temp != 22.0 {
		t.Errorf("TargetTemperature() = %v, want unchanged 22.0", temp)
	}

	// Pending writes were cleared; the next flush carries only its own.
	transport.mu.Lock()
	transport.submitErr = nil
	transport.mu.Unlock()

	if err := device.Set(ctx, map[string]any{PropertyPower: true}); err != nil {
		t.Fatalf("Set() after failure returned error: %v", err)
	}
	subs := transport.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if got := recordFlags(subs[0]); got != powerFlag {
		t.Errorf("EffectiveFlags = %#x, want only %#x", got, powerFlag)
	}
}

func TestSetContextCancelled(t *testing.T) {
	device, _ := newTestAtaDevice(t)
	if err := device.Update(context.Background()); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := device.Set(ctx, map[string]any{PropertyTargetTemperature: 24.0})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Identity and conf accessors
// =============================================================================

func TestDeviceIdentity(t *testing.T) {
	device, _ := newTestAtaDevice(t)

	if got := device.ID(); got != 67890 {
		t.Errorf("ID() = %d, want 67890", got)
	}
	if got := device.BuildingID(); got != 12345 {
		t.Errorf("BuildingID() = %d, want 12345", got)
	}
	if got := device.MAC(); got != "a1:b2:c3:d4:e5:f6" {
		t.Errorf("MAC() = %q", got)
	}
	if got := device.Serial(); got != "1704120321" {
		t.Errorf("Serial() = %q", got)
	}
	if got := device.Name(); got != "Living Room" {
		t.Errorf("Name() = %q, want Living Room", got)
	}
	if got := device.Kind(); got != KindAta {
		t.Errorf("Kind() = %q, want %q", got, KindAta)
	}
	if got := device.TempUnit(); got != UnitCelsius {
		t.Errorf("TempUnit() = %q, want celsius", got)
	}
	if got := device.TemperatureIncrement(); got != 0.5 {
		t.Errorf("TemperatureIncrement() = %v, want 0.5", got)
	}
}
