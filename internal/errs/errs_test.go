package errs

import (
	"errors"
	"testing"
)

var errSentinel = errors.New("pkg: operation failed")

func TestWrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(errSentinel, cause)
	if !errors.Is(err, errSentinel) {
		t.Errorf("wrapped error must match its sentinel: %v", err)
	}
	if Wrap(errSentinel, nil) != nil {
		t.Error("Wrap with nil cause must return nil")
	}
}

func TestWrapMsg(t *testing.T) {
	err := WrapMsg(errSentinel, "context", errors.New("underlying"))
	if !errors.Is(err, errSentinel) {
		t.Errorf("wrapped error must match its sentinel: %v", err)
	}
	if got := err.Error(); got != "pkg: operation failed: context: underlying" {
		t.Errorf("message = %q", got)
	}

	err = WrapMsg(errSentinel, "context", nil)
	if !errors.Is(err, errSentinel) {
		t.Errorf("wrapped error must match its sentinel: %v", err)
	}
	if got := err.Error(); got != "pkg: operation failed: context" {
		t.Errorf("message without cause = %q", got)
	}
}
