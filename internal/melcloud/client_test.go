package melcloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/config"
)

// melcloudStub is a canned MELCloud service for client tests.
type melcloudStub struct {
	mu          sync.Mutex
	loginCalls  int
	listCalls   int
	lastToken   string
	listDevices []map[string]any
	userDetails map[string]any
}

func newMelcloudStub() *melcloudStub {
	return &melcloudStub{
		userDetails: map[string]any{"UseFahrenheit": false},
	}
}

func (s *melcloudStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/Login/ClientLogin", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.loginCalls++
		s.mu.Unlock()
		writeJSON(w, map[string]any{
			"ErrorId":   nil,
			"LoginData": map[string]any{"ContextKey": "test-context-key"},
		})
	})
	mux.HandleFunc("/User/GetUserDetails", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastToken = r.Header.Get("X-MitsContextKey")
		s.mu.Unlock()
		writeJSON(w, s.userDetails)
	})
	mux.HandleFunc("/User/ListDevices", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.listCalls++
		devices := s.listDevices
		s.mu.Unlock()
		writeJSON(w, devices)
	})
	mux.HandleFunc("/Device/SetAta", func(w http.ResponseWriter, r *http.Request) {
		var state map[string]any
		json.NewDecoder(r.Body).Decode(&state) //nolint:errcheck // Test stub
		state["echo"] = "SetAta"
		writeJSON(w, state)
	})
	mux.HandleFunc("/Device/SetAtw", func(w http.ResponseWriter, r *http.Request) {
		var state map[string]any
		json.NewDecoder(r.Body).Decode(&state) //nolint:errcheck // Test stub
		state["echo"] = "SetAtw"
		writeJSON(w, state)
	})
	mux.HandleFunc("/Device/Get", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"DeviceID": 1,
			"Power":    true,
		})
	})
	mux.HandleFunc("/Device/ListDeviceUnits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"Model": "Test Unit"}})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // Test stub
}

func deviceEntry(id, deviceType int) map[string]any {
	return map[string]any{
		"DeviceID":   id,
		"BuildingID": 1,
		"Device":     map[string]any{"DeviceType": deviceType},
	}
}

func testClient(t *testing.T, stub *melcloudStub, cfg config.MELCloudConfig) *Client {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client, err := Connect(context.Background(), cfg, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	return client
}

// =============================================================================
// Login
// =============================================================================

func TestConnectLogsIn(t *testing.T) {
	stub := newMelcloudStub()
	client := testClient(t, stub, config.MELCloudConfig{
		Email:    "user@example.com",
		Password: "hunter2",
	})

	if got := client.Token(); got != "test-context-key" {
		t.Errorf("Token() = %q, want test-context-key", got)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.loginCalls != 1 {
		t.Errorf("login calls = %d, want 1", stub.loginCalls)
	}
}

func TestConnectTokenSkipsLogin(t *testing.T) {
	stub := newMelcloudStub()
	client := testClient(t, stub, config.MELCloudConfig{Token: "stored-token"})

	if got := client.Token(); got != "stored-token" {
		t.Errorf("Token() = %q, want stored-token", got)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.loginCalls != 0 {
		t.Errorf("login calls = %d, want 0", stub.loginCalls)
	}
}

func TestConnectLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Login/ClientLogin", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ErrorId": 1, "LoginData": nil})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := Connect(context.Background(), config.MELCloudConfig{
		Email:    "user@example.com",
		Password: "wrong",
	}, WithBaseURL(server.URL))
	if !errors.Is(err, ErrLoginFailed) {
		t.Errorf("Connect() error = %v, want ErrLoginFailed", err)
	}
}

// =============================================================================
// Device configuration list
// =============================================================================

func TestUpdateConfsFlattensStructure(t *testing.T) {
	stub := newMelcloudStub()
	stub.listDevices = []map[string]any{
		{
			"Structure": map[string]any{
				"Devices": []any{deviceEntry(1, 0)},
				"Areas": []any{
					map[string]any{"Devices": []any{deviceEntry(2, 0)}},
				},
				"Floors": []any{
					map[string]any{
						"Devices": []any{deviceEntry(3, 1)},
						"Areas": []any{
							// Device 3 appears here too; first occurrence wins.
							map[string]any{"Devices": []any{deviceEntry(3, 1), deviceEntry(4, 3)}},
						},
					},
				},
			},
		},
	}
	client := testClient(t, stub, config.MELCloudConfig{Token: "t"})

	if err := client.UpdateConfs(context.Background()); err != nil {
		t.Fatalf("UpdateConfs() returned error: %v", err)
	}

	confs := client.DeviceConfs()
	if len(confs) != 4 {
		t.Fatalf("DeviceConfs() returned %d confs, want 4 after dedup", len(confs))
	}
	wantOrder := []int{1, 2, 3, 4}
	for i, conf := range confs {
		id, _ := asInt(conf["DeviceID"])
		if id != wantOrder[i] {
			t.Errorf("conf[%d] DeviceID = %d, want %d", i, id, wantOrder[i])
		}
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.lastToken != "t" {
		t.Errorf("X-MitsContextKey = %q, want t", stub.lastToken)
	}
}

func TestUpdateConfsRateLimited(t *testing.T) {
	stub := newMelcloudStub()
	client := testClient(t, stub, config.MELCloudConfig{
		Token:              "t",
		ConfUpdateInterval: time.Hour,
	})
	ctx := context.Background()

	if err := client.UpdateConfs(ctx); err != nil {
		t.Fatalf("first UpdateConfs() returned error: %v", err)
	}
	if err := client.UpdateConfs(ctx); err != nil {
		t.Fatalf("second UpdateConfs() returned error: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.listCalls != 1 {
		t.Errorf("list calls = %d, want 1 within the interval", stub.listCalls)
	}
}

// =============================================================================
// State submission routing
// =============================================================================

func TestSetDeviceStateRouting(t *testing.T) {
	stub := newMelcloudStub()
	client := testClient(t, stub, config.MELCloudConfig{Token: "t"})
	ctx := context.Background()

	tests := []struct {
		name       string
		deviceType int
		wantEcho   string
	}{
		{"air to air", 0, "SetAta"},
		{"air to water", 1, "SetAtw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.SetDeviceState(ctx, map[string]any{
				"DeviceType":     tt.deviceType,
				"EffectiveFlags": 0x01,
			})
			if err != nil {
				t.Fatalf("SetDeviceState() returned error: %v", err)
			}
			if got := resp["echo"]; got != tt.wantEcho {
				t.Errorf("routed to %v, want %s", got, tt.wantEcho)
			}
		})
	}
}

func TestSetDeviceStateUnsupportedType(t *testing.T) {
	stub := newMelcloudStub()
	client := testClient(t, stub, config.MELCloudConfig{Token: "t"})

	_, err := client.SetDeviceState(context.Background(), map[string]any{"DeviceType": 3})
	if !errors.Is(err, ErrUnsupportedDevice) {
		t.Errorf("SetDeviceState(type 3) error = %v, want ErrUnsupportedDevice", err)
	}
}

// =============================================================================
// Device enumeration
// =============================================================================

func TestDevicesGroupsByType(t *testing.T) {
	stub := newMelcloudStub()
	stub.listDevices = []map[string]any{
		{
			"Structure": map[string]any{
				"Devices": []any{
					deviceEntry(1, 0),
					deviceEntry(2, 0),
					deviceEntry(3, 1),
					deviceEntry(4, 3),
					deviceEntry(5, 99),
				},
			},
		},
	}
	client := testClient(t, stub, config.MELCloudConfig{Token: "t"})

	devices, err := client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() returned error: %v", err)
	}

	if len(devices.Ata) != 2 {
		t.Errorf("Ata devices = %d, want 2", len(devices.Ata))
	}
	if len(devices.Atw) != 1 {
		t.Errorf("Atw devices = %d, want 1", len(devices.Atw))
	}
	if len(devices.Erv) != 1 {
		t.Errorf("Erv devices = %d, want 1", len(devices.Erv))
	}
	if devices.Ata[0].ID() != 1 || devices.Ata[1].ID() != 2 {
		t.Error("Ata devices out of order")
	}
}

func TestDevicesFahrenheitAccount(t *testing.T) {
	stub := newMelcloudStub()
	stub.userDetails = map[string]any{"UseFahrenheit": true}
	stub.listDevices = []map[string]any{
		{"Structure": map[string]any{"Devices": []any{deviceEntry(1, 0)}}},
	}
	client := testClient(t, stub, config.MELCloudConfig{Token: "t"})

	devices, err := client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() returned error: %v", err)
	}
	if len(devices.Ata) != 1 {
		t.Fatalf("Ata devices = %d, want 1", len(devices.Ata))
	}
	if got := devices.Ata[0].TempUnit(); got != UnitFahrenheit {
		t.Errorf("TempUnit() = %q, want fahrenheit", got)
	}
}

func TestRequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := Connect(context.Background(), config.MELCloudConfig{Token: "t"}, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}

	_, err = client.FetchDeviceState(context.Background(), 1, 1)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("FetchDeviceState() error = %v, want ErrRequestFailed", err)
	}
}
