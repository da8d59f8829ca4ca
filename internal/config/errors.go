package config

import (
	"errors"
)

// Sentinel error kinds. Load wraps file and env failures in ErrLoadConfig and
// Validate wraps range problems in ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
