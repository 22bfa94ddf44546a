package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/config"
)

// BaseURL is the MELCloud service endpoint.
const BaseURL = "https://app.melcloud.com/Mitsubishi.Wifi.Client"

// appVersion is sent with login requests. The service rejects versions
// it considers too old, so this tracks the mobile app release.
const appVersion = "1.19.1.1"

// Device type codes used by the service.
const (
	deviceTypeAta = 0
	deviceTypeAtw = 1
	deviceTypeErv = 3
)

// accessLevelGuest marks guest access; unit information is not
// available at this level.
const accessLevelGuest = 4

// Client talks to the MELCloud REST API.
//
// It holds the session token, the rate-limited device configuration
// cache, and the account details. Devices share one Client so conf
// fetches are pooled across them.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string

	confUpdateInterval time.Duration
	setDebounce        time.Duration
	requestTimeout     time.Duration

	// Guards the conf cache and account record.
	mu             sync.RWMutex
	lastConfUpdate time.Time
	deviceConfs    []map[string]any
	account        map[string]any
}

// Option customises a Client. Used by tests to point at a local server.
type Option func(*Client)

// WithBaseURL overrides the service endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Connect creates a MELCloud client from configuration.
//
// If cfg.Token is set it is used directly; otherwise a login request
// is made with the configured email and password.
//
// Parameters:
//   - ctx: Context for the login request
//   - cfg: MELCloud configuration from config.yaml
//
// Returns:
//   - *Client: Authenticated client ready for use
//   - error: If login fails
func Connect(ctx context.Context, cfg config.MELCloudConfig, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:            BaseURL,
		httpClient:         &http.Client{Timeout: cfg.RequestTimeout},
		token:              cfg.Token,
		confUpdateInterval: cfg.ConfUpdateInterval,
		setDebounce:        cfg.SetDebounce,
		requestTimeout:     cfg.RequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		if err := c.login(ctx, cfg.Email, cfg.Password); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Token returns the session token currently in use.
// Persist it to skip the login round trip on the next start.
func (c *Client) Token() string {
	return c.token
}

// login authenticates with email and password and stores the context key.
func (c *Client) login(ctx context.Context, email, password string) error {
	body := map[string]any{
		"Email":           email,
		"Password":        password,
		"Language":        0,
		"AppVersion":      appVersion,
		"Persist":         true,
		"CaptchaResponse": nil,
	}

	var resp struct {
		ErrorId   *int `json:"ErrorId"` //nolint:revive // Field name fixed by the API
		LoginData *struct {
			ContextKey string `json:"ContextKey"`
		} `json:"LoginData"`
	}

	if err := c.post(ctx, "/Login/ClientLogin", body, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if resp.ErrorId != nil {
		return fmt.Errorf("%w: error id %d", ErrLoginFailed, *resp.ErrorId)
	}
	if resp.LoginData == nil || resp.LoginData.ContextKey == "" {
		return fmt.Errorf("%w: response carried no context key", ErrLoginFailed)
	}

	c.token = resp.LoginData.ContextKey
	return nil
}

// UpdateConfs refreshes the account details and device configuration
// list.
//
// Calls are rate limited so Device instances can freely call this from
// their own Update without hammering the service; a call within the
// configured interval (default 5 minutes) is a no-op.
func (c *Client) UpdateConfs(ctx context.Context) error {
	c.mu.Lock()
	if !c.lastConfUpdate.IsZero() && time.Since(c.lastConfUpdate) < c.confUpdateInterval {
		c.mu.Unlock()
		return nil
	}
	c.lastConfUpdate = time.Now()
	c.mu.Unlock()

	if err := c.fetchUserDetails(ctx); err != nil {
		return err
	}
	return c.fetchDeviceConfs(ctx)
}

// fetchUserDetails fetches the account record (temperature unit
// preference among other things).
func (c *Client) fetchUserDetails(ctx context.Context) error {
	var account map[string]any
	if err := c.get(ctx, "/User/GetUserDetails", &account); err != nil {
		return err
	}

	c.mu.Lock()
	c.account = account
	c.mu.Unlock()
	return nil
}

// fetchDeviceConfs fetches all configured devices.
//
// Devices are scattered across the building structure: directly on the
// structure, in areas, on floors, and in areas on floors. A device can
// appear in more than one place, so the flattened list is deduplicated
// by DeviceID keeping the first occurrence.
func (c *Client) fetchDeviceConfs(ctx context.Context) error {
	var entries []map[string]any
	if err := c.get(ctx, "/User/ListDevices", &entries); err != nil {
		return err
	}

	var flat []map[string]any
	for _, entry := range entries {
		structure := asMap(entry["Structure"])
		flat = append(flat, asMapSlice(structure["Devices"])...)

		for _, area := range asMapSlice(structure["Areas"]) {
			flat = append(flat, asMapSlice(area["Devices"])...)
		}

		for _, floor := range asMapSlice(structure["Floors"]) {
			flat = append(flat, asMapSlice(floor["Devices"])...)

			for _, area := range asMapSlice(floor["Areas"]) {
				flat = append(flat, asMapSlice(area["Devices"])...)
			}
		}
	}

	visited := make(map[int]bool, len(flat))
	confs := make([]map[string]any, 0, len(flat))
	for _, conf := range flat {
		id, ok := asInt(conf["DeviceID"])
		if !ok || visited[id] {
			continue
		}
		visited[id] = true
		confs = append(confs, conf)
	}

	c.mu.Lock()
	c.deviceConfs = confs
	c.mu.Unlock()
	return nil
}

// DeviceConfs returns the device configurations from the most recent
// refresh.
func (c *Client) DeviceConfs() []map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	confs := make([]map[string]any, len(c.deviceConfs))
	copy(confs, c.deviceConfs)
	return confs
}

// Account returns the account record, or nil before the first refresh.
func (c *Client) Account() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// FetchDeviceState fetches the state record of a device.
//
// This method should not be called more than once a minute. Rate
// limiting is left to the caller.
func (c *Client) FetchDeviceState(ctx context.Context, deviceID, buildingID int) (map[string]any, error) {
	var state map[string]any
	path := fmt.Sprintf("/Device/Get?id=%d&buildingID=%d", deviceID, buildingID)
	if err := c.get(ctx, path, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetDeviceState submits a full device state record.
//
// The endpoint is selected by the record's DeviceType field. The
// caller is responsible for the record's EffectiveFlags; this method
// is as dumb as it gets.
func (c *Client) SetDeviceState(ctx context.Context, state map[string]any) (map[string]any, error) {
	deviceType, _ := asInt(state["DeviceType"])

	var setter string
	switch deviceType {
	case deviceTypeAta:
		setter = "SetAta"
	case deviceTypeAtw:
		setter = "SetAtw"
	default:
		return nil, fmt.Errorf("%w: no setter for type %d", ErrUnsupportedDevice, deviceType)
	}

	var resp map[string]any
	if err := c.post(ctx, "/Device/"+setter, state, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchDeviceUnits fetches unit information for a device.
//
// This is user-provided info such as indoor/outdoor unit model names
// and serial numbers.
func (c *Client) FetchDeviceUnits(ctx context.Context, deviceID int) ([]map[string]any, error) {
	var units []map[string]any
	body := map[string]any{"deviceId": deviceID}
	if err := c.post(ctx, "/Device/ListDeviceUnits", body, &units); err != nil {
		return nil, err
	}
	return units, nil
}

// Devices enumerates the account's devices as typed device objects.
//
// The configuration list is refreshed first. Devices share this Client,
// so enumerate once per process and let the instances poll; the conf
// rate limit does the pooling.
func (c *Client) Devices(ctx context.Context) (*Devices, error) {
	if err := c.UpdateConfs(ctx); err != nil {
		return nil, err
	}

	useFahrenheit := false
	if account := c.Account(); account != nil {
		useFahrenheit, _ = account["UseFahrenheit"].(bool)
	}

	devices := &Devices{}
	for _, conf := range c.DeviceConfs() {
		deviceType, ok := asInt(asMap(conf["Device"])["DeviceType"])
		if !ok {
			continue
		}
		switch deviceType {
		case deviceTypeAta:
			devices.Ata = append(devices.Ata, newAtaDevice(conf, c, c.setDebounce, useFahrenheit))
		case deviceTypeAtw:
			devices.Atw = append(devices.Atw, newAtwDevice(conf, c, c.setDebounce, useFahrenheit))
		case deviceTypeErv:
			devices.Erv = append(devices.Erv, newErvDevice(conf, c, c.setDebounce, useFahrenheit))
		}
	}
	return devices, nil
}

// Devices groups the account's devices by type.
type Devices struct {
	Ata []*AtaDevice
	Atw []*AtwDevice
	Erv []*ErvDevice
}

// headers returns the session headers expected by the service.
func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:73.0) Gecko/20100101 Firefox/73.0")
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("X-MitsContextKey", c.token)
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Cookie", "policyaccepted=true")
	return h
}

// get performs a GET request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("melcloud: building request: %w", err)
	}
	req.Header = c.headers()
	return c.do(req, out)
}

// post performs a POST request with a JSON body and decodes the
// response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("melcloud: encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("melcloud: building request: %w", err)
	}
	req.Header = c.headers()
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read side only

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return fmt.Errorf("%w: %s %s returned %d", ErrRequestFailed, req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}
	return nil
}
