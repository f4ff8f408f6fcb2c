package model

import (
	"errors"
	"fmt"
)

// ConfigError reports a missing or unusable embedding setting. It is fatal:
// the client cannot be built and nothing retries it.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("embedding config %s: %s", e.Setting, e.Reason)
}

// ProviderError is any failed call to the embedding provider. StatusCode is 0
// when no HTTP response was received (transport error or timeout).
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("embedding provider error: %d - %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("embedding provider error: %v", e.Err)
	default:
		return "embedding provider error: " + e.Body
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
