// Package device defines the contract between pipeline and capture devices.
package device

import (
	"errors"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/sample"
)

// ErrNoDevice is returned by Context.Open when no device matches the
// requested config.
var ErrNoDevice = errors.New("no matching device")

// DeliverFunc receives sample sets from device. It's called from device
// goroutines and must return quickly. Producer keeps its own reference to
// the set and releases it after DeliverFunc returns.
type DeliverFunc func(*sample.Set)

// Context opens capture devices.
type Context interface {
	// Open binds a device matching provided config. Empty device name in
	// config matches any device.
	Open(c config.Supported, deliver DeliverFunc) (Binding, error)
}

// Binding is a device bound to a single configuration.
type Binding interface {
	// Name returns the name of bound device.
	Name() string
	// Config returns actual config of the device.
	Config() config.Actual
	// ActualConfig converts a supported config into an actual one in
	// context of this device.
	ActualConfig(config.Supported) config.Actual
	// Activate starts samples delivery.
	Activate() error
	// Deactivate stops samples delivery. Deliveries in flight are
	// completed before Deactivate returns.
	Deactivate() error
	// Close releases the device.
	Close() error
}
