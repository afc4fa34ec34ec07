package cvpipe

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/cvpipe/metric"
)

// Option provides a way to set functional parameters to pipeline.
type Option func(*Pipeline)

// WithLogger sets logger to pipeline. If this option is not provided,
// logger from log package is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithMetrics enables metrics of pipeline and its consumers.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithQueueSize sets number of sets every asynchronous module can have
// queued before the oldest ones are dropped.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		p.queueSize = n
	}
}

// WithCloseTimeout sets how long stop waits for asynchronous module to
// finish processing. Zero means no limit.
func WithCloseTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.closeTimeout = d
	}
}
