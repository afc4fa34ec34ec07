package cvpipe

import (
	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/internal/registry"
	"github.com/dudk/cvpipe/sample"
)

// Handle identifies a registered module. It's assigned when module is
// added and stays the same until pipeline is reset.
type Handle = registry.Handle

// Module is a computer vision module that consumes sample sets.
type Module interface {
	// SupportedConfig returns module config by index. Configs are
	// enumerated from zero until the first error, which should be
	// config.ErrEndOfConfigs.
	SupportedConfig(index int) (config.Supported, error)
	// SetConfig sets the negotiated config.
	SetConfig(config.Actual) error
	// ResetConfig drops the config set by SetConfig.
	ResetConfig()
	// Process handles a sample set. Set must not be modified and must be
	// retained if it's used after Process returns.
	Process(*sample.Set) error
	// Flush releases all resources that module holds.
	Flush()
	// UID returns unique identifier of module implementation.
	UID() string
}

// Callback receives notifications from the pipeline. Methods are called
// from device goroutines and from goroutines of asynchronous modules.
type Callback interface {
	// OnSampleSet is called for every set delivered by device.
	OnSampleSet(*sample.Set)
	// OnError is called when module fails to process a set.
	OnError(error)
	// OnModuleProcessComplete is called when module processed a set.
	OnModuleProcessComplete(Handle)
}
