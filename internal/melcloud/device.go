package melcloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// PropertyPower is the one writable property shared by every device
// type. It is applied directly with its fixed flag bit instead of
// going through the type's write table.
const PropertyPower = "power"

// powerFlag is the EffectiveFlags bit for Power.
const powerFlag = 0x01

// Temperature units reported by TempUnit.
const (
	UnitCelsius    = "celsius"
	UnitFahrenheit = "fahrenheit"
)

// Device kind labels returned by Kind.
const (
	KindAta     = "ata"
	KindAtw     = "atw"
	KindErv     = "erv"
	KindUnknown = "unknown"
)

// Defaults for the write coalescer.
const (
	defaultSetDebounce   = time.Second
	defaultSubmitTimeout = 30 * time.Second
)

// lastSeenLayout parses the LastCommunication timestamp (UTC, variable
// fraction digits).
const lastSeenLayout = "2006-01-02T15:04:05.999999"

// flushGen is one flush generation. Every Set call merged into the
// generation waits on the same done channel and observes the same
// result.
type flushGen struct {
	done chan struct{}
	err  error
}

// complete releases every waiter. Must be called exactly once.
func (g *flushGen) complete(err error) {
	g.err = err
	close(g.done)
}

// Device is the base MELCloud device: identity, the conf and state
// records, and the debounced write coalescer. Typed devices (ATA, ATW,
// ERV) embed it and contribute their write table and accessors.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Network submissions are serialized per device; a second flush
//     waits for the outstanding one to apply its response.
type Device struct {
	deviceID    int
	buildingID  int
	mac         string
	serial      string
	accessLevel int

	transport     Transport
	useFahrenheit bool
	debounce      time.Duration
	submitTimeout time.Duration

	// writes is the device type's property table, set at construction.
	writes writeTable

	// mu guards the records and the coalescer fields below.
	mu      sync.Mutex
	conf    map[string]any
	state   map[string]any
	units   []map[string]any
	pending map[string]any
	timer   *time.Timer
	gen     *flushGen

	// submitMu serializes network submissions for this device.
	submitMu sync.Mutex
}

func newDevice(conf map[string]any, transport Transport, debounce time.Duration, useFahrenheit bool, writes writeTable) *Device {
	if debounce <= 0 {
		debounce = defaultSetDebounce
	}
	deviceID, _ := asInt(conf["DeviceID"])
	buildingID, _ := asInt(conf["BuildingID"])
	mac, _ := conf["MacAddress"].(string)
	serial, _ := conf["SerialNumber"].(string)
	accessLevel, _ := asInt(conf["AccessLevel"])

	return &Device{
		deviceID:      deviceID,
		buildingID:    buildingID,
		mac:           mac,
		serial:        serial,
		accessLevel:   accessLevel,
		transport:     transport,
		useFahrenheit: useFahrenheit,
		debounce:      debounce,
		submitTimeout: defaultSubmitTimeout,
		writes:        writes,
		conf:          conf,
		pending:       make(map[string]any),
	}
}

// ID returns the MELCloud device identifier.
func (d *Device) ID() int { return d.deviceID }

// BuildingID returns the identifier of the building the device belongs to.
func (d *Device) BuildingID() int { return d.buildingID }

// MAC returns the hardware address of the WiFi adapter.
func (d *Device) MAC() string { return d.mac }

// Serial returns the adapter serial number.
func (d *Device) Serial() string { return d.serial }

// AccessLevel returns the account's access level for this device.
func (d *Device) AccessLevel() int { return d.accessLevel }

// Update fetches the state of the device from MELCloud.
//
// The shared configuration list is refreshed first (rate limited by the
// client), this device's conf is located by identity and replaced
// wholesale, then the state record is fetched and replaced wholesale.
// Unit information is fetched once, unless the account only has guest
// access.
//
// Rate limit calls to this method; polling every 60 seconds is enough
// to catch events at the rate MELCloud sees them.
func (d *Device) Update(ctx context.Context) error {
	if err := d.transport.UpdateConfs(ctx); err != nil {
		return err
	}

	var conf map[string]any
	for _, c := range d.transport.DeviceConfs() {
		id, _ := asInt(c["DeviceID"])
		building, _ := asInt(c["BuildingID"])
		if id == d.deviceID && building == d.buildingID {
			conf = c
			break
		}
	}
	if conf == nil {
		return fmt.Errorf("%w: device %d in building %d", ErrConfNotFound, d.deviceID, d.buildingID)
	}

	state, err := d.transport.FetchDeviceState(ctx, d.deviceID, d.buildingID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.conf = conf
	d.state = state
	needUnits := d.units == nil && d.accessLevel != accessLevelGuest
	d.mu.Unlock()

	if needUnits {
		units, err := d.transport.FetchDeviceUnits(ctx, d.deviceID)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.units = units
		d.mu.Unlock()
	}

	return nil
}

// Set schedules a property write to MELCloud.
//
// Property names are validated synchronously; an unknown name or a bad
// value fails immediately without scheduling anything. Accepted values
// merge into the pending map (last value wins) and the debounce timer
// restarts, so rapid successive calls coalesce into a single
// consolidated submission once the quiet period elapses.
//
// The call blocks until the flush it was merged into completes, and
// returns that flush's result. A transport failure is reported to every
// caller merged into the flush; the pending writes are cleared either
// way and a retry requires a fresh Set.
func (d *Device) Set(ctx context.Context, properties map[string]any) error {
	if len(properties) == 0 {
		return nil
	}

	for key, value := range properties {
		if key == PropertyPower {
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("%w: power requires a bool", ErrInvalidProperty)
			}
			continue
		}
		// Validate against a scratch record; device state stays untouched.
		if err := d.applyWrite(map[string]any{}, key, value); err != nil {
			if errors.Is(err, ErrUnsupportedProperty) {
				return fmt.Errorf("%w: %s", ErrInvalidProperty, key)
			}
			return err
		}
	}

	d.mu.Lock()
	for key, value := range properties {
		d.pending[key] = value
	}
	if d.timer != nil {
		// Cancel the queued flush; its writes stay merged in pending.
		d.timer.Stop()
	}
	if d.gen == nil {
		d.gen = &flushGen{done: make(chan struct{})}
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.debounce, func() { d.flush(gen) })
	d.mu.Unlock()

	select {
	case <-gen.done:
		return gen.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush submits the accumulated pending writes as one consolidated
// update.
//
// The generation check bows out if a later Set superseded this timer;
// the writes it carried are still pending and the newer generation owns
// them. Submissions are serialized so a response can never overwrite a
// later flush's result.
func (d *Device) flush(gen *flushGen) {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	writes := d.pending
	d.pending = make(map[string]any)
	d.gen = nil
	d.timer = nil

	if d.state == nil {
		d.mu.Unlock()
		gen.complete(ErrStateNeverPolled)
		return
	}
	newState := cloneRecord(d.state)
	d.mu.Unlock()

	for key, value := range writes {
		if key == PropertyPower {
			newState[fieldPower] = value
			setRecordFlags(newState, recordFlags(newState)|powerFlag)
			continue
		}
		if err := d.applyWrite(newState, key, value); err != nil {
			// Values were validated at Set; a failure here means the
			// conf changed underneath us. Report it to the waiters.
			gen.complete(err)
			return
		}
	}

	if recordFlags(newState) != 0 {
		newState[fieldHasPendingCommand] = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.submitTimeout)
	defer cancel()

	resp, err := d.transport.SetDeviceState(ctx, newState)
	if err != nil {
		gen.complete(err)
		return
	}

	d.mu.Lock()
	d.state = resp
	d.mu.Unlock()
	gen.complete(nil)
}

// RoundTemperature rounds a temperature to the nearest temperature
// increment of the device, half away from zero.
func (d *Device) RoundTemperature(temperature float64) float64 {
	return roundToIncrement(temperature, d.TemperatureIncrement())
}

// Name returns the device name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, _ := d.conf["DeviceName"].(string)
	return name
}

// Kind returns the device kind label ("ata", "atw", "erv" or "unknown").
func (d *Device) Kind() string {
	code, ok := asInt(d.confDevice()["DeviceType"])
	if !ok {
		return KindUnknown
	}
	switch code {
	case deviceTypeAta:
		return KindAta
	case deviceTypeAtw:
		return KindAtw
	case deviceTypeErv:
		return KindErv
	default:
		return KindUnknown
	}
}

// TempUnit returns the temperature unit used by the account.
func (d *Device) TempUnit() string {
	if d.useFahrenheit {
		return UnitFahrenheit
	}
	return UnitCelsius
}

// TemperatureIncrement returns the setpoint step of the device.
func (d *Device) TemperatureIncrement() float64 {
	if inc, ok := asFloat(d.confDevice()["TemperatureIncrement"]); ok && inc > 0 {
		return inc
	}
	return 0.5
}

// LastSeen returns the timestamp of the last communication from the
// device to MELCloud (UTC), or nil before the first poll.
func (d *Device) LastSeen() *time.Time {
	raw, ok := d.stateProp("LastCommunication").(string)
	if !ok {
		return nil
	}
	ts, err := time.Parse(lastSeenLayout, raw)
	if err != nil {
		return nil
	}
	return &ts
}

// Power returns the power on / standby state of the device, or nil
// before the first poll.
func (d *Device) Power() *bool {
	power, ok := d.stateProp(fieldPower).(bool)
	if !ok {
		return nil
	}
	return &power
}

// UnitInfo is user-provided model information for an indoor or outdoor
// unit.
type UnitInfo struct {
	Model        string
	ModelNumber  string
	SerialNumber string
}

// Units returns device model info, or nil when unit information has
// not been fetched (guest access, or no Update yet).
func (d *Device) Units() []UnitInfo {
	d.mu.Lock()
	units := d.units
	d.mu.Unlock()
	if units == nil {
		return nil
	}

	infos := make([]UnitInfo, 0, len(units))
	for _, unit := range units {
		model, _ := unit["Model"].(string)
		modelNumber, _ := unit["ModelNumber"].(string)
		serial, _ := unit["SerialNumber"].(string)
		infos = append(infos, UnitInfo{
			Model:        model,
			ModelNumber:  modelNumber,
			SerialNumber: serial,
		})
	}
	return infos
}

// stateProp reads a field from the state record. Returns nil before the
// first poll.
func (d *Device) stateProp(key string) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == nil {
		return nil
	}
	return d.state[key]
}

// stateFloat reads a numeric state field, nil before the first poll or
// when the field is absent.
func (d *Device) stateFloat(key string) *float64 {
	f, ok := asFloat(d.stateProp(key))
	if !ok {
		return nil
	}
	return &f
}

// stateBool reads a boolean state field.
func (d *Device) stateBool(key string) *bool {
	b, ok := d.stateProp(key).(bool)
	if !ok {
		return nil
	}
	return &b
}

// polled reports whether the device state has been fetched at least once.
func (d *Device) polled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state != nil
}

// confDevice returns the nested Device object of the conf record.
func (d *Device) confDevice() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return asMap(d.conf["Device"])
}

// confRoot returns the conf record itself.
func (d *Device) confRoot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf
}

// deviceFloat reads a numeric field from the conf's Device object.
func (d *Device) deviceFloat(key string) *float64 {
	f, ok := asFloat(d.confDevice()[key])
	if !ok {
		return nil
	}
	return &f
}

// deviceBool reads a boolean field from the conf's Device object.
func (d *Device) deviceBool(key string) bool {
	b, _ := d.confDevice()[key].(bool)
	return b
}
