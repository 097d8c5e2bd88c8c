package errs

import (
	"fmt"
)

// Wrap attaches err to a package-level sentinel so callers can match with
// errors.Is while still seeing the underlying cause.
func Wrap(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

func WrapMsg(sentinel error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("%w: %s: %v", sentinel, msg, err)
}
