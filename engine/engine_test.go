package engine

import (
	"errors"
	"fmt"
	"slices"
	"syscall"
	"testing"
)

type nopEngine struct{}

func (nopEngine) Open(string, Config) (Env, error) { return nil, errors.New("nop") }

func TestRegistry(t *testing.T) {
	Register("test-b", nopEngine{})
	Register("test-a", nopEngine{})

	if _, ok := Lookup("test-a"); !ok {
		t.Fatal("Lookup(test-a) failed")
	}
	if _, ok := Lookup("test-missing"); ok {
		t.Error("Lookup of unknown engine succeeded")
	}
	names := Names()
	if !slices.IsSorted(names) {
		t.Errorf("Names() not sorted: %v", names)
	}
	if !slices.Contains(names, "test-b") {
		t.Errorf("Names() = %v, missing test-b", names)
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	Register("test-a", nopEngine{})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, Success},
		{NotFound, NotFound},
		{fmt.Errorf("wrapped: %w", MapFull), MapFull},
		{syscall.EACCES, EACCES},
		{errors.New("plain"), Problem},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if !IsNotFound(fmt.Errorf("x: %w", NotFound)) {
		t.Error("IsNotFound failed on wrapped NotFound")
	}
	if !IsKeyExist(KeyExist) {
		t.Error("IsKeyExist failed")
	}
}

func TestStatusMessage(t *testing.T) {
	if got := MapFull.Error(); got != "environment mapsize limit reached" {
		t.Errorf("MapFull.Error() = %q", got)
	}
	if got := Status(-1).Error(); got != "unknown error code -1" {
		t.Errorf("Status(-1).Error() = %q", got)
	}
	if got := EINVAL.Error(); got != syscall.EINVAL.Error() {
		t.Errorf("EINVAL.Error() = %q, want %q", got, syscall.EINVAL.Error())
	}
}

func TestCursorOpString(t *testing.T) {
	if SetRange.String() != "set_range" {
		t.Errorf("SetRange.String() = %q", SetRange.String())
	}
	if CursorOp(99).String() != "unknown" {
		t.Errorf("CursorOp(99).String() = %q", CursorOp(99).String())
	}
}
