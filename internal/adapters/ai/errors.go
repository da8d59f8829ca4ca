package ai

import "errors"

var (
	// ErrNoAPIKey is returned when neither a key nor a client is configured.
	ErrNoAPIKey = errors.New("ai: anthropic api key not set")
	// ErrParse reports a model answer without usable suggestions.
	ErrParse = errors.New("ai: unusable response")
)
