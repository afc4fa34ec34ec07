package cvpipe

import (
	"fmt"

	"github.com/dudk/cvpipe/internal/fanout"
	"github.com/dudk/cvpipe/sample"
)

// newConsumers creates consumer for application callback and for every
// module in order of registration.
func (p *Pipeline) newConsumers(cb Callback) []fanout.Consumer {
	entries := p.modules.Entries()
	consumers := make([]fanout.Consumer, 0, len(entries)+1)
	if cb != nil {
		consumers = append(consumers, fanout.NewSync(
			fanout.Options{
				Name:     "app",
				Config:   p.device.Config(),
				TimeSync: p.timeSync,
				Meter:    p.metrics.Meter("app"),
				Logger:   p.log,
			},
			func(s *sample.Set) error {
				cb.OnSampleSet(s)
				return nil
			},
		))
	}
	for _, e := range entries {
		m, h := e.Item, e.Handle
		b := p.bindings[h]
		opts := fanout.Options{
			Name:         m.UID(),
			Config:       b.actual,
			TimeSync:     b.timeSync,
			CloseTimeout: p.closeTimeout,
			Meter:        p.metrics.Meter(m.UID()),
			Logger:       p.log.WithField("handle", h),
		}
		if cb != nil {
			opts.OnError = func(err error) {
				cb.OnError(fmt.Errorf("module %s: %w", m.UID(), err))
			}
			opts.OnDone = func() {
				cb.OnModuleProcessComplete(h)
			}
		}
		if b.async {
			consumers = append(consumers, fanout.NewAsync(opts, m.Process, p.queueSize))
		} else {
			consumers = append(consumers, fanout.NewSync(opts, m.Process))
		}
	}
	return consumers
}
