// Package config handles loading and validating the shading controller
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Default value handling
//
// Blind definitions are not part of this file; shading.blinds_file points at
// a separate YAML file read by blind.LoadConfigFile.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The JWT secret guards the write endpoints that move blinds
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc := cfg.Location()
package config
