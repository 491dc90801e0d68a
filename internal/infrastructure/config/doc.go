// Package config handles loading and validating the trainer store configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with ENTSTORE_* environment variables
//   - Validation of required fields
//   - Resolving keyring references for credentials
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should come from the
//     environment or the OS keyring ("keyring:<entry>", see ResolveSecrets)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/entstore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
//
// When no file is present, Default returns a configuration that opens
// ./data/entstore.db with the cgo SQLite driver and all integrations disabled.
package config
