package fanout

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dudk/cvpipe/metric"
	"github.com/dudk/cvpipe/sample"
)

// Set is an ordered set of consumers. Delivery and replacement of consumers
// are guarded by its own lock, so deliveries never wait for pipeline
// operations.
type Set struct {
	mu        sync.RWMutex
	consumers []Consumer
	metrics   *metric.Metrics
}

// NewSet returns an empty set.
func NewSet(m *metric.Metrics) *Set {
	return &Set{metrics: m}
}

// Deliver offers the set to every consumer in order.
func (s *Set) Deliver(smp *sample.Set) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.consumers {
		c.Notify(smp)
	}
}

// Swap replaces all consumers. Previous consumers are returned and not
// closed.
func (s *Set) Swap(consumers []Consumer) []Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.consumers
	s.consumers = consumers
	s.metrics.Consumers(len(consumers))
	return prev
}

// Len returns number of consumers.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consumers)
}

// Clear removes all consumers and closes them. When Clear returns, no
// consumer holds any sample set.
func (s *Set) Clear() error {
	return Close(s.Swap(nil))
}

// Close closes consumers concurrently and joins their errors.
func Close(consumers []Consumer) error {
	var (
		g    errgroup.Group
		errs = make([]error, len(consumers))
	)
	for i, c := range consumers {
		g.Go(func() error {
			if err := c.Close(); err != nil {
				errs[i] = fmt.Errorf("consumer %s: %w", c.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
