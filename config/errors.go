package config

import "fmt"

// ErrParseEnv wraps an environment parsing failure
func ErrParseEnv(err error) error {
	return fmt.Errorf("config: parse env: %w", err)
}

// ErrInvalid wraps a component validation failure
func ErrInvalid(component string, err error) error {
	return fmt.Errorf("config: invalid %s config: %w", component, err)
}
