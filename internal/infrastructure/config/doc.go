// Package config handles loading and validating Gray Logic Hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file for local development
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (broker password, JWT secret, initial PIN) should be
//     set via environment variables, not committed YAML
//   - The initial PIN only seeds the runtime PIN cell; rotation happens
//     through the audited admin operation and is not written back here
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	delay := cfg.Locks.GetAutoRelockDelay()
package config
