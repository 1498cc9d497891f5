package config

import "errors"

// Load and Validate wrap one of these, so callers can tell a broken source
// from a bad value.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
