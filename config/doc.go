// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files. It supports configuration for server
// settings, session pool limits, sandbox provider parameters, and
// language-specific settings. The HTTP bearer token is read from the
// AUTH_TOKEN environment variable.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Pool capacity: %d\n", cfg.Pool.MaxSessionsPerLanguage)
package config
