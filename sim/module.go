package sim

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/sample"
)

// Module emulates a computer vision module. It declares configs it was
// created with and spends Load on every processed set.
type Module struct {
	uid     string
	configs []config.Supported
	load    time.Duration

	mu      sync.Mutex
	actual  config.Actual
	last    uint64
	stats   Stats
	holding []*sample.Set
	// keep is number of the latest sets module holds between calls.
	keep int
}

// Stats contains module counters.
type Stats struct {
	Processed int
	// Gaps is number of sets skipped between processed ones, based on
	// their sequence numbers.
	Gaps    int
	Flushes int
}

// ModuleOption configures a simulated module.
type ModuleOption func(*Module)

// WithLoad sets processing time of every set.
func WithLoad(d time.Duration) ModuleOption {
	return func(m *Module) {
		m.load = d
	}
}

// WithHistory makes module retain n latest sets until Flush.
func WithHistory(n int) ModuleOption {
	return func(m *Module) {
		m.keep = n
	}
}

// NewModule returns module that supports provided configs.
func NewModule(configs []config.Supported, options ...ModuleOption) *Module {
	m := &Module{
		uid:     uuid.NewString(),
		configs: configs,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// SupportedConfig implements cvpipe.Module.
func (m *Module) SupportedConfig(i int) (config.Supported, error) {
	if i < 0 || i >= len(m.configs) {
		return config.Supported{}, config.ErrEndOfConfigs
	}
	return m.configs[i], nil
}

// SetConfig implements cvpipe.Module.
func (m *Module) SetConfig(c config.Actual) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actual = c
	return nil
}

// ResetConfig implements cvpipe.Module.
func (m *Module) ResetConfig() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actual = config.Actual{}
}

// Process implements cvpipe.Module.
func (m *Module) Process(s *sample.Set) error {
	time.Sleep(m.load)
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := number(s); ok {
		if m.last != 0 && n > m.last+1 {
			m.stats.Gaps += int(n - m.last - 1)
		}
		m.last = n
	}
	m.stats.Processed++
	if m.keep > 0 {
		m.holding = append(m.holding, s.Retain())
		if len(m.holding) > m.keep {
			m.holding[0].Release()
			m.holding = m.holding[1:]
		}
	}
	return nil
}

// Flush implements cvpipe.Module. Retained sets are released.
func (m *Module) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.holding {
		s.Release()
	}
	m.holding = nil
	m.last = 0
	m.stats.Flushes++
}

// UID implements cvpipe.Module.
func (m *Module) UID() string {
	return m.uid
}

// Actual returns config set to module.
func (m *Module) Actual() config.Actual {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actual
}

// Stats returns module counters.
func (m *Module) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// number returns sequence number of the first image in set.
func number(s *sample.Set) (uint64, bool) {
	for i := 0; i < config.StreamCount; i++ {
		if img := s.Image(config.StreamType(i)); img != nil {
			return img.Number, true
		}
	}
	return 0, false
}
