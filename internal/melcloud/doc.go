// Package melcloud implements the client for the Mitsubishi Electric
// MELCloud service.
//
// This package manages:
//   - Authentication and session headers against the MELCloud REST API
//   - Device enumeration from the building/floor/area structure
//   - Per-device state polling and configuration refresh
//   - Debounced, coalesced property writes with EffectiveFlags encoding
//
// # Write Coalescing
//
// MELCloud accepts a full state record per write and uses the
// EffectiveFlags bitmask to decide which fields to honour. Rapid
// successive property changes (a user dragging a temperature slider,
// an automation touching mode and setpoint together) must not each
// produce a cloud request. Set merges properties into a pending map
// and restarts a debounce timer; when the quiet period elapses a
// single consolidated record is submitted and every caller that
// contributed to it is released with the same result.
//
// Each device type carries its own write table mapping property names
// to a state field mutation and a flag contribution. Flag bits compose
// by OR, so multiple pending properties never interfere.
//
// # Conf and State
//
// Devices hold two records fetched from the cloud: a slowly-changing
// configuration (capabilities, naming, calibration) and a fast-changing
// state (telemetry and control values). Both are replaced wholesale on
// refresh, never field-by-field, so a record is always an internally
// consistent snapshot. Accessors return nil or an "undefined" sentinel
// until the first successful poll.
//
// # Usage
//
//	client, err := melcloud.Connect(ctx, cfg.MELCloud)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	devices, err := client.Devices(ctx)
//	for _, dev := range devices.Ata {
//	    if err := dev.Update(ctx); err != nil {
//	        continue
//	    }
//	    err = dev.Set(ctx, map[string]any{
//	        "target_temperature": 21.5,
//	        "operation_mode":     "heat",
//	    })
//	}
package melcloud
