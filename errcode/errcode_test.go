package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	if c := Of(nil); c != OK {
		t.Fatalf("Of(nil) = %v, want %v", c, OK)
	}
	if c := Of(PinInUse); c != PinInUse {
		t.Fatalf("Of(PinInUse) = %v, want %v", c, PinInUse)
	}
	if c := Of(ErrPinInUse("bind", "pump1")); c != PinInUse {
		t.Fatalf("Of(ErrPinInUse(...)) = %v, want %v", c, PinInUse)
	}
	if c := Of(&E{C: NotFound}); c != NotFound {
		t.Fatalf("Of(&E{...}) = %v, want %v", c, NotFound)
	}
}

func TestMapDriverErr(t *testing.T) {
	if c := MapDriverErr(nil); c != OK {
		t.Fatalf("MapDriverErr(nil) = %v", c)
	}
	if c := MapDriverErr(fmt.Errorf("read: %w", context.DeadlineExceeded)); c != Timeout {
		t.Fatalf("deadline = %v, want %v", c, Timeout)
	}
	if c := MapDriverErr(ErrHardwareMissing("bind", "gone")); c != HardwareMissing {
		t.Fatalf("coder passthrough = %v, want %v", c, HardwareMissing)
	}
	if c := MapDriverErr(errors.New("i2c write failed")); c != IoError {
		t.Fatalf("fallback = %v, want %v", c, IoError)
	}
}

func TestEErrorAndUnwrap(t *testing.T) {
	e := ErrHardwareMissing("bind", "no response at 0x44")
	if e.Code() != HardwareMissing {
		t.Fatalf("Code() = %v, want %v", e.Code(), HardwareMissing)
	}
	if e.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
