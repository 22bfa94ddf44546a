package melcloud

import "errors"

// Domain-specific errors for MELCloud operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrLoginFailed is returned when authentication is rejected or the
	// login response carries no context key.
	ErrLoginFailed = errors.New("melcloud: login failed")

	// ErrRequestFailed is returned when the service answers with a
	// non-success HTTP status.
	ErrRequestFailed = errors.New("melcloud: request failed")

	// ErrInvalidProperty is returned by Set when a property name is not
	// writable on the device, or a value has the wrong type. Raised
	// synchronously, before any flush is scheduled.
	ErrInvalidProperty = errors.New("melcloud: invalid property")

	// ErrUnsupportedProperty is returned by a device type's write table
	// when it cannot encode the named property.
	ErrUnsupportedProperty = errors.New("melcloud: unsupported property")

	// ErrInvalidEnumValue is returned when encoding a label that is not
	// part of the property's enumeration.
	ErrInvalidEnumValue = errors.New("melcloud: invalid enum value")

	// ErrStateNeverPolled is returned when a write flushes before the
	// device state has ever been fetched. Call Update first.
	ErrStateNeverPolled = errors.New("melcloud: device state has never been polled")

	// ErrUnsupportedDevice is returned when submitting state for a
	// device type without a write endpoint (ERV units) or an unknown
	// type code.
	ErrUnsupportedDevice = errors.New("melcloud: unsupported device type")

	// ErrConfNotFound is returned by Update when the refreshed device
	// list no longer contains this device.
	ErrConfNotFound = errors.New("melcloud: device conf not found")
)
