package mock

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/device"
	"github.com/dudk/cvpipe/sample"
)

// ErrNotActive is returned by Binding.Push when device is not activated.
var ErrNotActive = errors.New("device is not active")

// Context mocks a device.Context interface.
type Context struct {
	// Devices lists names of available devices. Single "mock" device is
	// available if empty.
	Devices []string
	Log     *Log

	ErrorOnOpen     error
	ErrorOnActivate error
	PanicOnActivate bool
	// Reject allows to fail opening of particular configs.
	Reject func(config.Supported) bool

	mu     sync.Mutex
	opened []*Binding
}

// Open implements device.Context.
func (c *Context) Open(cfg config.Supported, deliver device.DeliverFunc) (device.Binding, error) {
	c.Log.Record("device.Open")
	if c.ErrorOnOpen != nil {
		return nil, c.ErrorOnOpen
	}
	if c.Reject != nil && c.Reject(cfg) {
		return nil, device.ErrNoDevice
	}
	name, ok := c.find(cfg.DeviceName)
	if !ok {
		return nil, device.ErrNoDevice
	}
	b := &Binding{
		name:    name,
		cfg:     cfg,
		deliver: deliver,
		ctx:     c,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, b)
	return b, nil
}

func (c *Context) find(name string) (string, bool) {
	devices := c.Devices
	if len(devices) == 0 {
		devices = []string{"mock"}
	}
	if name == "" {
		return devices[0], true
	}
	for _, d := range devices {
		if d == name {
			return d, true
		}
	}
	return "", false
}

// Opened returns all bindings opened by context.
func (c *Context) Opened() []*Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Binding(nil), c.opened...)
}

// Last returns the last opened binding or nil.
func (c *Context) Last() *Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.opened) == 0 {
		return nil
	}
	return c.opened[len(c.opened)-1]
}

// Binding mocks a device.Binding interface.
type Binding struct {
	name    string
	cfg     config.Supported
	deliver device.DeliverFunc
	ctx     *Context

	mu     sync.Mutex
	active bool
	closed bool
	// outstanding is number of pushed sets that are not released yet.
	outstanding atomic.Int32
	// outstandingOnDeactivate captured when Deactivate is called.
	outstandingOnDeactivate int
}

// Name implements device.Binding.
func (b *Binding) Name() string {
	return b.name
}

// Config implements device.Binding.
func (b *Binding) Config() config.Actual {
	return b.ActualConfig(b.cfg)
}

// ActualConfig implements device.Binding. Rates of enabled streams and
// motions are taken from the bound config.
func (b *Binding) ActualConfig(s config.Supported) config.Actual {
	a := config.Actual{DeviceName: b.name}
	for i, st := range s.Streams {
		if st.Enabled {
			a.Streams[i] = b.cfg.Streams[i]
			a.Streams[i].Flags |= st.Flags
		}
	}
	for i, m := range s.Motions {
		if m.Enabled {
			a.Motions[i] = b.cfg.Motions[i]
			a.Motions[i].Flags |= m.Flags
		}
	}
	return a
}

// Activate implements device.Binding.
func (b *Binding) Activate() error {
	b.ctx.Log.Record("device.Activate")
	if b.ctx.PanicOnActivate {
		panic("mock device panic")
	}
	if b.ctx.ErrorOnActivate != nil {
		return b.ctx.ErrorOnActivate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	return nil
}

// Deactivate implements device.Binding.
func (b *Binding) Deactivate() error {
	b.ctx.Log.Record("device.Deactivate")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
	b.outstandingOnDeactivate = int(b.outstanding.Load())
	return nil
}

// Close implements device.Binding.
func (b *Binding) Close() error {
	b.ctx.Log.Record("device.Close")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
	b.closed = true
	return nil
}

// Push builds a set and delivers it if device is active. Producer
// reference is released after delivery.
func (b *Binding) Push(builder *sample.Builder) error {
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if !active {
		return ErrNotActive
	}
	b.outstanding.Add(1)
	s := builder.OnRelease(func() { b.outstanding.Add(-1) }).Build()
	b.deliver(s)
	s.Release()
	return nil
}

// State returns activation and close flags.
func (b *Binding) State() (active, closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.closed
}

// Candidate returns the config device was opened with.
func (b *Binding) Candidate() config.Supported {
	return b.cfg
}

// Outstanding returns number of sets not released yet.
func (b *Binding) Outstanding() int {
	return int(b.outstanding.Load())
}

// OutstandingOnDeactivate returns number of sets that weren't released
// when Deactivate was called.
func (b *Binding) OutstandingOnDeactivate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstandingOnDeactivate
}
