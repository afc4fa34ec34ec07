// Package sim provides simulated capture devices and modules. It allows to
// run pipeline without hardware: devices generate synthetic sample sets at
// the negotiated rates, modules emulate processing load.
package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/device"
	"github.com/dudk/cvpipe/internal/pool"
	"github.com/dudk/cvpipe/log"
	"github.com/dudk/cvpipe/sample"
)

// Default rates used when config accepts any rate.
const (
	DefaultFrameRate  = 30
	DefaultAccelRate  = 250
	DefaultGyroRate   = 200
	defaultMotionRate = 200
	// MaxRate is the highest frame or sample rate simulated device can
	// generate.
	MaxRate = 1000
)

// validRate returns true for rates that accept any value and for rates
// device can generate.
func validRate(rate int) bool {
	return rate >= 0 && rate <= MaxRate
}

// Device describes capabilities of a simulated device.
type Device struct {
	Name string
	// MaxFrameRate limits frame rate of every stream. Zero means no limit.
	MaxFrameRate int
	// Streams lists stream types device has. All types are available if
	// empty.
	Streams []config.StreamType
	// NoMotion disables motion sensors.
	NoMotion bool
}

func (d Device) supports(c config.Supported) error {
	for i, s := range c.Streams {
		if !s.Enabled {
			continue
		}
		t := config.StreamType(i)
		if !d.hasStream(t) {
			return fmt.Errorf("%s: stream %v is not available", d.Name, t)
		}
		if !validRate(s.FrameRate) {
			return fmt.Errorf("%s: stream %v rate %d is out of range", d.Name, t, s.FrameRate)
		}
		if d.MaxFrameRate > 0 && s.FrameRate > d.MaxFrameRate {
			return fmt.Errorf("%s: stream %v rate %d exceeds %d", d.Name, t, s.FrameRate, d.MaxFrameRate)
		}
	}
	for i, m := range c.Motions {
		if !m.Enabled {
			continue
		}
		if d.NoMotion {
			return fmt.Errorf("%s: motion %v is not available", d.Name, config.MotionType(i))
		}
		if !validRate(m.SampleRate) {
			return fmt.Errorf("%s: motion %v rate %d is out of range", d.Name, config.MotionType(i), m.SampleRate)
		}
	}
	return nil
}

func (d Device) hasStream(t config.StreamType) bool {
	if len(d.Streams) == 0 {
		return true
	}
	for _, s := range d.Streams {
		if s == t {
			return true
		}
	}
	return false
}

// Context opens simulated devices.
type Context struct {
	Devices []Device
	Logger  logrus.FieldLogger
}

// NewContext returns context with provided devices.
func NewContext(devices ...Device) *Context {
	return &Context{Devices: devices}
}

// Open implements device.Context. The first device that supports the config
// is bound.
func (c *Context) Open(cfg config.Supported, deliver device.DeliverFunc) (device.Binding, error) {
	var errs []error
	for _, d := range c.Devices {
		if cfg.DeviceName != "" && cfg.DeviceName != d.Name {
			continue
		}
		if err := d.supports(cfg); err != nil {
			errs = append(errs, err)
			continue
		}
		logger := c.Logger
		if logger == nil {
			logger = log.New()
		}
		b := &Binding{
			name:    d.Name,
			deliver: deliver,
			log:     logger.WithField("device", d.Name),
		}
		b.actual = b.ActualConfig(cfg)
		return b, nil
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", device.ErrNoDevice, errs)
	}
	return nil, device.ErrNoDevice
}

// Binding is a simulated device. When active, it generates sample sets on
// its own goroutine.
type Binding struct {
	name    string
	actual  config.Actual
	deliver device.DeliverFunc
	log     logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	produced    atomic.Uint64
	outstanding atomic.Int64
}

// Name implements device.Binding.
func (b *Binding) Name() string {
	return b.name
}

// Config implements device.Binding.
func (b *Binding) Config() config.Actual {
	return b.actual
}

// ActualConfig implements device.Binding. Rates that accept any value are
// resolved to device defaults.
func (b *Binding) ActualConfig(s config.Supported) config.Actual {
	a := config.Actual{DeviceName: b.name}
	for i, st := range s.Streams {
		if !st.Enabled {
			continue
		}
		if st.FrameRate == 0 {
			st.FrameRate = DefaultFrameRate
		}
		a.Streams[i] = st
	}
	for i, m := range s.Motions {
		if !m.Enabled {
			continue
		}
		if m.SampleRate == 0 {
			m.SampleRate = motionRate(config.MotionType(i))
		}
		a.Motions[i] = m
	}
	return a
}

func motionRate(t config.MotionType) int {
	switch t {
	case config.Accel:
		return DefaultAccelRate
	case config.Gyro:
		return DefaultGyroRate
	}
	return defaultMotionRate
}

// Activate implements device.Binding.
func (b *Binding) Activate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%s: device is closed", b.name)
	}
	if b.cancel != nil {
		return nil
	}
	interval, ok := b.interval()
	if !ok {
		return fmt.Errorf("%s: no stream or motion sensor with valid rate", b.name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.produce(ctx, interval)
	b.log.WithField("interval", interval).Debug("device activated")
	return nil
}

// Deactivate implements device.Binding. It waits for the set in flight to
// be delivered.
func (b *Binding) Deactivate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	b.cancel = nil
	b.log.WithFields(logrus.Fields{
		"produced":    b.produced.Load(),
		"outstanding": b.outstanding.Load(),
	}).Debug("device deactivated")
	return nil
}

// Close implements device.Binding.
func (b *Binding) Close() error {
	if err := b.Deactivate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Produced returns number of generated sets.
func (b *Binding) Produced() uint64 {
	return b.produced.Load()
}

// Outstanding returns number of generated sets that are not released yet.
func (b *Binding) Outstanding() int64 {
	return b.outstanding.Load()
}

// interval returns period of the fastest enabled stream or motion sensor.
func (b *Binding) interval() (time.Duration, bool) {
	rate := 0
	for _, s := range b.actual.Streams {
		if s.Enabled && s.FrameRate > rate {
			rate = s.FrameRate
		}
	}
	for _, m := range b.actual.Motions {
		if m.Enabled && m.SampleRate > rate {
			rate = m.SampleRate
		}
	}
	if rate <= 0 || rate > MaxRate {
		return 0, false
	}
	return time.Second / time.Duration(rate), true
}

func (b *Binding) produce(ctx context.Context, interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.emit(now.Sub(start))
		}
	}
}

// emit builds a set that contains every enabled stream and motion sensor
// and delivers it. Image buffers return to pools when set is released.
func (b *Binding) emit(ts time.Duration) {
	var (
		n       = b.produced.Add(1)
		builder = sample.NewBuilder()
		buffers [config.StreamCount][]byte
	)
	for i, s := range b.actual.Streams {
		if !s.Enabled {
			continue
		}
		buffers[i] = pool.Get(s.Size.Width * s.Size.Height).Alloc()
		builder.Image(sample.Image{
			Stream:    config.StreamType(i),
			Size:      s.Size,
			FrameRate: s.FrameRate,
			Timestamp: ts,
			Number:    n,
			Data:      buffers[i],
		})
	}
	for i, m := range b.actual.Motions {
		if !m.Enabled {
			continue
		}
		builder.Motion(sample.Motion{
			Sensor:    config.MotionType(i),
			Timestamp: ts,
		})
	}
	b.outstanding.Add(1)
	set := builder.OnRelease(func() {
		for _, buf := range buffers {
			if buf != nil {
				pool.Get(len(buf)).Free(buf)
			}
		}
		b.outstanding.Add(-1)
	}).Build()
	b.deliver(set)
	set.Release()
}
