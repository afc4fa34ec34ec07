package cvpipe

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/device"
	"github.com/dudk/cvpipe/internal/fanout"
	"github.com/dudk/cvpipe/internal/registry"
	"github.com/dudk/cvpipe/internal/state"
	"github.com/dudk/cvpipe/log"
	"github.com/dudk/cvpipe/metric"
)

// State identifies one of the possible states pipeline can be in.
type State = state.State

// Pipeline states.
var (
	// Unconfigured means that modules can be added and no device is bound.
	Unconfigured State = state.Unconfigured
	// Configured means that device is bound and every module has its
	// config.
	Configured State = state.Configured
	// Streaming means that device delivers sample sets.
	Streaming State = state.Streaming
)

// binding is the negotiated config of a single module.
type binding struct {
	actual   config.Actual
	async    bool
	timeSync config.TimeSync
}

// Pipeline shares a single capture device between modules and
// application.
type Pipeline struct {
	// mu guards everything except consumers.
	mu       sync.Mutex
	state    State
	ctx      device.Context
	modules  registry.Registry[Module]
	bindings map[Handle]binding
	device   device.Binding
	// timeSync requested by user in the last successful configure.
	timeSync config.TimeSync

	// consumers have their own lock, so deliveries never wait on mu.
	consumers *fanout.Set

	log          logrus.FieldLogger
	metrics      *metric.Metrics
	queueSize    int
	closeTimeout time.Duration
}

// New creates a new pipeline that opens devices with provided context.
// Returned pipeline is in Unconfigured state.
func New(ctx device.Context, options ...Option) *Pipeline {
	p := &Pipeline{
		state:        Unconfigured,
		ctx:          ctx,
		queueSize:    fanout.DefaultQueueSize,
		closeTimeout: fanout.DefaultCloseTimeout,
	}
	for _, option := range options {
		option(p)
	}
	if p.log == nil {
		p.log = log.New()
	}
	p.consumers = fanout.NewSet(p.metrics)
	p.metrics.State(stateValue(p.state))
	return p
}

// AddModule registers a module. Modules can be added only in Unconfigured
// state.
func (p *Pipeline) AddModule(m Module) (Handle, error) {
	if isNil(m) {
		return "", ErrNullHandle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := state.Transition(p.state, state.AddModule); err != nil {
		return "", err
	}
	h, err := p.modules.Add(m)
	if err != nil {
		return "", fmt.Errorf("module %s: %w", m.UID(), err)
	}
	p.log.WithFields(logrus.Fields{"module": m.UID(), "handle": h}).Debug("module added")
	return h, nil
}

// ModuleCount returns number of registered modules.
func (p *Pipeline) ModuleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modules.Len()
}

// Module returns registered module and its handle by index.
func (p *Pipeline) Module(index int) (Module, Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.modules.At(index)
	if err != nil {
		return nil, "", err
	}
	return e.Item, e.Handle, nil
}

// DefaultConfig returns default config by index. Only a single default
// config exists.
func (p *Pipeline) DefaultConfig(index int) (config.Supported, error) {
	if index != 0 {
		return config.Supported{}, ErrOutOfRange
	}
	return config.Default(), nil
}

// Configure negotiates config between registered modules, restriction and
// device. It can be called again to reconfigure the pipeline, but not
// while streaming.
func (p *Pipeline) Configure(restriction config.Supported) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := state.Transition(p.state, state.Configure)
	if err != nil {
		return err
	}
	if err := p.configure(restriction); err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			p.setState(Unconfigured)
		}
		return err
	}
	p.setState(next)
	return nil
}

// CurrentConfig returns actual config of the bound device.
func (p *Pipeline) CurrentConfig() (config.Actual, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := state.Transition(p.state, state.Query); err != nil {
		return config.Actual{}, err
	}
	return p.device.Config(), nil
}

// ModuleConfig returns actual config negotiated for the module.
func (p *Pipeline) ModuleConfig(h Handle) (config.Actual, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := state.Transition(p.state, state.Query); err != nil {
		return config.Actual{}, err
	}
	if _, ok := p.modules.Lookup(h); !ok {
		return config.Actual{}, ErrNullHandle
	}
	return p.bindings[h].actual, nil
}

// Start starts streaming. If pipeline is not configured, it's configured
// without restriction first. Callback is optional: if provided, it receives
// every set and notifications about modules processing.
func (p *Pipeline) Start(cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := state.Transition(p.state, state.Start)
	if err != nil {
		return err
	}
	if p.state == Unconfigured {
		if err := p.configure(config.Supported{}); err != nil {
			p.log.WithError(err).Error("failed to set configuration")
			return err
		}
		p.setState(Configured)
	}

	consumers := p.newConsumers(cb)
	if err := protect(p.device.Activate); err != nil {
		p.log.WithError(err).Error("failed to start device")
		if cerr := fanout.Close(consumers); cerr != nil {
			p.log.WithError(cerr).Warn("failed to close consumers")
		}
		return fmt.Errorf("%w: %w", ErrDeviceFailed, err)
	}
	p.consumers.Swap(consumers)
	p.setState(next)
	p.log.WithField("consumers", len(consumers)).Info("streaming started")
	return nil
}

// Stop stops streaming. Negotiated configs are kept, so pipeline can be
// started again. If teardown fails, the error is returned, but pipeline is
// stopped anyway.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := state.Transition(p.state, state.Stop)
	if err != nil {
		return err
	}
	err = p.teardown()
	p.setState(next)
	p.log.Info("streaming stopped")
	return err
}

// Reset stops streaming, releases device and removes all modules. It can
// be called in any state and always succeeds.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, _ := state.Transition(p.state, state.Reset)
	if err := p.teardown(); err != nil {
		p.log.WithError(err).Warn("teardown failed during reset")
	}
	p.releaseDevice()
	p.modules.Reset()
	p.bindings = nil
	p.timeSync = config.SyncNotRequired
	p.setState(next)
	return nil
}

// Close implements io.Closer. It resets the pipeline.
func (p *Pipeline) Close() error {
	return p.Reset()
}

// State returns current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Device returns bound device or nil if pipeline is not configured.
func (p *Pipeline) Device() device.Binding {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

func (p *Pipeline) setState(s State) {
	if p.state != s {
		p.log.WithFields(logrus.Fields{"from": p.state, "to": s}).Debug("state changed")
	}
	p.state = s
	p.metrics.State(stateValue(s))
}

// isNil returns true for nil interface and for interface that holds a nil
// pointer.
func isNil(m Module) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func stateValue(s State) int {
	switch s {
	case Configured:
		return 1
	case Streaming:
		return 2
	}
	return 0
}
