package cvpipe

import (
	"errors"
	"fmt"

	"github.com/dudk/cvpipe/internal/fanout"
	"github.com/dudk/cvpipe/internal/registry"
	"github.com/dudk/cvpipe/internal/state"
)

var (
	// ErrInvalidState is returned if pipeline method cannot be executed at
	// this moment.
	ErrInvalidState = state.ErrInvalidState
	// ErrInvalidArgument is returned when configuration is requested
	// without restriction and without modules.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyRegistered is returned when the same module is added
	// twice.
	ErrAlreadyRegistered = registry.ErrAlreadyRegistered
	// ErrOutOfRange is returned when index is out of range.
	ErrOutOfRange = registry.ErrOutOfRange
	// ErrNullHandle is returned for nil modules and unknown handles.
	ErrNullHandle = errors.New("null handle")
	// ErrMatchNotFound is returned when no candidate config could be set
	// on device and modules.
	ErrMatchNotFound = errors.New("match not found")
	// ErrDeviceFailed is returned when device failed to activate.
	ErrDeviceFailed = errors.New("device failed")
	// ErrCloseTimeout is returned within TeardownError when asynchronous
	// module didn't finish processing in time.
	ErrCloseTimeout = fanout.ErrCloseTimeout
)

// TeardownError is returned if consumers or device failed to stop.
// Teardown itself is always completed.
type TeardownError struct {
	ErrConsumers error
	ErrDevice    error
}

func (e *TeardownError) Error() string {
	switch {
	case e.ErrConsumers != nil && e.ErrDevice != nil:
		return fmt.Sprintf("device error: %v after consumers error: %v", e.ErrDevice, e.ErrConsumers)
	case e.ErrConsumers != nil:
		return fmt.Sprintf("consumers error: %v", e.ErrConsumers)
	case e.ErrDevice != nil:
		return fmt.Sprintf("device error: %v", e.ErrDevice)
	}
	return ""
}

// Is checks if any of errors match provided sentinel error.
func (e *TeardownError) Is(err error) bool {
	if e.ErrConsumers != nil && errors.Is(e.ErrConsumers, err) {
		return true
	}
	if e.ErrDevice != nil && errors.Is(e.ErrDevice, err) {
		return true
	}
	return false
}

// ret returns untyped nil if there are no errors.
func (e *TeardownError) ret() error {
	if e.ErrConsumers == nil && e.ErrDevice == nil {
		return nil
	}
	return e
}

// protect calls fn and converts its panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
