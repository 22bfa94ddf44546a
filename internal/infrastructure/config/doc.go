// Package config handles loading and validating the MELCloud bridge
// configuration.
//
// Configuration is loaded from a YAML file with environment variable
// overrides for deployment-specific values and secrets:
//
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern MELBRIDGE_SECTION_KEY, for
// example MELBRIDGE_MELCLOUD_PASSWORD or MELBRIDGE_MQTT_HOST. Credentials
// should always come from the environment rather than the config file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Validation runs automatically during Load and collects every problem
// found, so a broken config reports all issues in one pass rather than
// one per restart.
package config
