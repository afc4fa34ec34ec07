// Package fanout delivers sample sets from device to consumers.
//
// Two kinds of consumers exist. Sync consumer processes a set in-line, on
// the goroutine that delivered it. Async consumer hands the set over to its
// own goroutine and returns immediately. Both of them skip sets that are not
// relevant to their config.
package fanout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/metric"
	"github.com/dudk/cvpipe/sample"
)

// DefaultQueueSize is the number of sets async consumer can hold before
// it starts to drop the oldest ones.
const DefaultQueueSize = 4

// DefaultCloseTimeout is used by pipeline unless other timeout is set.
const DefaultCloseTimeout = 5 * time.Second

// ErrCloseTimeout is returned when async consumer didn't finish processing
// in time after it was closed.
var ErrCloseTimeout = errors.New("close timeout")

// Consumer receives sample sets.
type Consumer interface {
	// Notify offers a set to consumer. It must not wait for processing
	// of previous sets.
	Notify(*sample.Set)
	// Close stops consumer and releases all sets it holds.
	Close() error
	// Name identifies consumer in logs and metrics.
	Name() string
}

// ProcessFunc processes a single set.
type ProcessFunc func(*sample.Set) error

// Options configures a consumer.
type Options struct {
	// Name identifies consumer.
	Name string
	// Config defines which sets are relevant for consumer.
	Config config.Actual
	// TimeSync defines if sets must contain all enabled streams.
	TimeSync config.TimeSync
	// OnError is called when process fails.
	OnError func(error)
	// OnDone is called when process succeeds.
	OnDone func()
	// CloseTimeout limits time Close of async consumer waits for the set
	// in process. Zero means no limit.
	CloseTimeout time.Duration
	Meter        *metric.Meter
	Logger       logrus.FieldLogger
}

// handler is the part shared by both consumers.
type handler struct {
	Options
	process ProcessFunc
	limiter *rate.Limiter
	// failures suppressed by limiter since last log entry.
	suppressed int
	mu         sync.Mutex
}

func newHandler(opts Options, fn ProcessFunc) *handler {
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		opts.Logger = logger
	}
	opts.Logger = opts.Logger.WithField("consumer", opts.Name)
	return &handler{
		Options: opts,
		process: fn,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// relevant returns true if set should be processed by consumer.
func (h *handler) relevant(s *sample.Set) bool {
	if h.Config.IsEmpty() {
		return true
	}
	return s.Covers(h.Config, h.TimeSync == config.SyncRequired)
}

func (h *handler) handle(s *sample.Set) {
	start := time.Now()
	err := h.process(s)
	h.Meter.Processed(start, err)
	if err != nil {
		h.logFailure(err)
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	if h.OnDone != nil {
		h.OnDone()
	}
}

// logFailure limits failure log entries to one per second.
func (h *handler) logFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.limiter.Allow() {
		h.suppressed++
		return
	}
	h.Logger.WithError(err).WithField("suppressed", h.suppressed).Error("failed to process sample set")
	h.suppressed = 0
}

// Sync is a consumer that processes sets in-line.
type Sync struct {
	*handler
}

// NewSync returns a new synchronous consumer.
func NewSync(opts Options, fn ProcessFunc) *Sync {
	return &Sync{handler: newHandler(opts, fn)}
}

// Notify processes the set on the caller goroutine.
func (c *Sync) Notify(s *sample.Set) {
	if !c.relevant(s) {
		c.Meter.Skipped()
		return
	}
	c.Meter.Delivered()
	c.handle(s)
}

// Close implements Consumer. Sync consumer doesn't hold any sets.
func (c *Sync) Close() error {
	return nil
}

// Name implements Consumer.
func (c *Sync) Name() string {
	return c.Options.Name
}

// Async is a consumer that processes sets on its own goroutine. Its queue
// is bounded, when it's full the oldest set is dropped.
type Async struct {
	*handler
	queue     chan *sample.Set
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewAsync returns a new asynchronous consumer and starts its goroutine.
func NewAsync(opts Options, fn ProcessFunc, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &Async{
		handler: newHandler(opts, fn),
		queue:   make(chan *sample.Set, queueSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go c.loop()
	return c
}

// Notify queues the set and returns immediately.
func (c *Async) Notify(s *sample.Set) {
	if !c.relevant(s) {
		c.Meter.Skipped()
		return
	}
	s.Retain()
	for {
		select {
		case c.queue <- s:
			c.Meter.Delivered()
			return
		default:
		}
		// queue is full, make room for the latest set.
		select {
		case old := <-c.queue:
			old.Release()
			c.Meter.Dropped()
			c.Logger.Debug("dropped sample set")
		default:
		}
	}
}

func (c *Async) loop() {
	defer close(c.exited)
	defer c.drain()
	for {
		select {
		case <-c.done:
			return
		case s := <-c.queue:
			c.handle(s)
			s.Release()
		}
	}
}

// drain releases queued sets.
func (c *Async) drain() {
	for {
		select {
		case s := <-c.queue:
			s.Release()
		default:
			return
		}
	}
}

// Close stops the goroutine, waits for current set to be processed and
// releases queued sets. If processing doesn't finish within CloseTimeout,
// ErrCloseTimeout is returned and the goroutine releases its sets when it's
// done. Notify must not be called after Close.
func (c *Async) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.CloseTimeout <= 0 {
			<-c.exited
			return
		}
		timer := time.NewTimer(c.CloseTimeout)
		defer timer.Stop()
		select {
		case <-c.exited:
		case <-timer.C:
			c.closeErr = fmt.Errorf("%w: still processing after %v", ErrCloseTimeout, c.CloseTimeout)
			c.Logger.WithError(c.closeErr).Warn("consumer is stuck")
		}
	})
	return c.closeErr
}

// Name implements Consumer.
func (c *Async) Name() string {
	return c.Options.Name
}
