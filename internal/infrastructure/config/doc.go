// Package config handles loading and validating Gray Pulse configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, the API token) should be set
//     via environment variables rather than the config file
//   - The config file should have restricted permissions (0600)
//   - An empty api.auth_token disables authentication entirely; only
//     acceptable on a trusted network
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Actuator.Host)
package config
