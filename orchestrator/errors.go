package orchestrator

import "fmt"

var (
	// ErrNilConfig is returned by New without a config
	ErrNilConfig = fmt.Errorf("orchestrator: nil config")
)

// ErrFetchMany wraps the first failure of a FetchMany call
func ErrFetchMany(key string, err error) error {
	return fmt.Errorf("orchestrator: fetch %q: %w", key, err)
}
