package melcloud

import "context"

// Transport is the narrow contract a Device needs from the cloud.
// *Client implements it; tests supply fakes.
//
// All records are raw MELCloud JSON objects decoded into maps. The
// Device owns interpretation; the transport only moves them.
type Transport interface {
	// UpdateConfs refreshes the device configuration list and account
	// details. Calls are rate limited internally, a call within the
	// configured interval returns immediately without hitting the
	// service.
	UpdateConfs(ctx context.Context) error

	// DeviceConfs returns the configuration records from the most
	// recent refresh.
	DeviceConfs() []map[string]any

	// Account returns the account details from the most recent
	// refresh, or nil before the first one.
	Account() map[string]any

	// FetchDeviceState retrieves the live state record for a device.
	// Rate limiting is left to the caller; polling more than once a
	// minute gains nothing.
	FetchDeviceState(ctx context.Context, deviceID, buildingID int) (map[string]any, error)

	// SetDeviceState submits a full state record. The record's
	// DeviceType field selects the endpoint. The response is the
	// service's view of the resulting state.
	SetDeviceState(ctx context.Context, state map[string]any) (map[string]any, error)

	// FetchDeviceUnits retrieves user-provided unit information
	// (model names, serial numbers) for a device.
	FetchDeviceUnits(ctx context.Context, deviceID int) ([]map[string]any, error)
}
