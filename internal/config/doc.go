// Package config provides loading and environment overlay for courier
// configuration. It exposes a Default() baseline, JSON file loading,
// COURIER_* environment overrides and validation.
//
// Example:
//
//	cfg, err := config.Load("/etc/courier.json")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	replies := cfg.ResponseQueueName()
package config
