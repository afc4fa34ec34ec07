// Package mock provides mocks for pipeline collaborators and allows to
// execute integration tests. Every mock can record its calls into a shared
// Log, so order of calls across modules and devices can be checked.
package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/dudk/cvpipe"
	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/sample"
)

// Log records calls in order they happened. Nil log records nothing.
type Log struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a call.
func (l *Log) Record(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns recorded calls.
func (l *Log) Calls() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Index returns position of the first matching call or -1.
func (l *Log) Index(call string) int {
	for i, c := range l.Calls() {
		if c == call {
			return i
		}
	}
	return -1
}

// Module mocks a cvpipe.Module interface.
type Module struct {
	ID      string
	Configs []config.Supported
	// Delay is applied to every Process call.
	Delay time.Duration
	// Hold blocks every Process call until it's closed.
	Hold <-chan struct{}
	Log  *Log

	ErrorOnSetConfig error
	ErrorOnProcess   error

	mu         sync.Mutex
	actual     config.Actual
	configured bool
	counter
}

// counter counts module calls.
type counter struct {
	started   int
	processed int
	resets    int
	flushes   int
	sets      int
}

// SupportedConfig implements cvpipe.Module.
func (m *Module) SupportedConfig(i int) (config.Supported, error) {
	if i < 0 || i >= len(m.Configs) {
		return config.Supported{}, config.ErrEndOfConfigs
	}
	return m.Configs[i], nil
}

// SetConfig implements cvpipe.Module.
func (m *Module) SetConfig(c config.Actual) error {
	m.Log.Record("%s.SetConfig", m.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.ErrorOnSetConfig != nil {
		return m.ErrorOnSetConfig
	}
	m.actual = c
	m.configured = true
	return nil
}

// ResetConfig implements cvpipe.Module.
func (m *Module) ResetConfig() {
	m.Log.Record("%s.ResetConfig", m.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.actual = config.Actual{}
	m.configured = false
}

// Process implements cvpipe.Module.
func (m *Module) Process(*sample.Set) error {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
	if m.Hold != nil {
		<-m.Hold
	}
	time.Sleep(m.Delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnProcess != nil {
		return m.ErrorOnProcess
	}
	m.processed++
	return nil
}

// Flush implements cvpipe.Module.
func (m *Module) Flush() {
	m.Log.Record("%s.Flush", m.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

// UID implements cvpipe.Module.
func (m *Module) UID() string {
	return m.ID
}

// Actual returns config set to the module.
func (m *Module) Actual() (config.Actual, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actual, m.configured
}

// Started returns number of Process calls, including unfinished ones.
func (m *Module) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Processed returns number of successfully processed sets.
func (m *Module) Processed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

// Counts returns number of SetConfig, ResetConfig and Flush calls.
func (m *Module) Counts() (sets, resets, flushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets, m.resets, m.flushes
}

// Callback mocks a cvpipe.Callback interface.
type Callback struct {
	mu        sync.Mutex
	sets      int
	errs      []error
	completed []cvpipe.Handle
}

// OnSampleSet implements cvpipe.Callback.
func (c *Callback) OnSampleSet(*sample.Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
}

// OnError implements cvpipe.Callback.
func (c *Callback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// OnModuleProcessComplete implements cvpipe.Callback.
func (c *Callback) OnModuleProcessComplete(h cvpipe.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, h)
}

// Sets returns number of received sets.
func (c *Callback) Sets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// Errors returns received errors.
func (c *Callback) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// Completed returns handles of modules that completed processing.
func (c *Callback) Completed() []cvpipe.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cvpipe.Handle(nil), c.completed...)
}
