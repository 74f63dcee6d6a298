package dedupe

import "fmt"

// ErrUnexpectedType is returned by DoAs when the shared value has another type
func ErrUnexpectedType(key string, v any) error {
	return fmt.Errorf("dedupe: unexpected value type %T for key %q", v, key)
}
