// Package config handles loading and validating plantpot-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with PLANTPOT_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Configuration is read exactly once, by cmd/plantpot. Packages below it
// (the connection layer in particular) receive plain values and never look
// at the environment themselves.
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Transport)
package config
