package cvpipe

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/device"
	"github.com/dudk/cvpipe/metric"
)

// configure tries candidate configs in order until one is accepted by the
// device and every module. It must be called with mu held. If candidates
// are exhausted, no device is bound and modules have no config.
func (p *Pipeline) configure(restriction config.Supported) error {
	entries := p.modules.Entries()
	queriers := make([]config.Querier, 0, len(entries))
	for _, e := range entries {
		queriers = append(queriers, e.Item)
	}
	candidates, err := config.Negotiate(queriers, restriction)
	if err != nil {
		if errors.Is(err, config.ErrEmptyRequest) {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return err
	}
	p.log.WithFields(logrus.Fields{
		"modules":    len(entries),
		"candidates": len(candidates),
	}).Debug("negotiated candidates")

	for i, candidate := range candidates {
		l := p.log.WithField("candidate", i)
		p.releaseDevice()

		var dev device.Binding
		err := protect(func() (err error) {
			dev, err = p.ctx.Open(candidate, p.consumers.Deliver)
			return err
		})
		if err != nil {
			l.WithError(err).WithField("config", candidate).Debug("skipping config that failed to open device")
			p.metrics.ConfigureAttempt(metric.ResultOpenFailed)
			continue
		}

		bindings, ok := p.bind(dev, candidate, l)
		if !ok {
			p.metrics.ConfigureAttempt(metric.ResultUnsatisfied)
			p.closeDevice(dev)
			continue
		}
		if err := p.pushConfigs(bindings); err != nil {
			l.WithError(err).Debug("skipping config rejected by module")
			p.metrics.ConfigureAttempt(metric.ResultRejected)
			p.closeDevice(dev)
			continue
		}

		p.bindings = bindings
		p.device = dev
		p.timeSync = restriction.TimeSync
		p.metrics.ConfigureAttempt(metric.ResultCommitted)
		l.WithFields(logrus.Fields{
			"device": dev.Name(),
			"config": dev.Config(),
		}).Info("configuration set")
		return nil
	}

	p.releaseDevice()
	p.bindings = nil
	for _, m := range p.modules.Items() {
		m.ResetConfig()
	}
	return ErrMatchNotFound
}

// bind finds satisfying config of every module for candidate opened on dev.
func (p *Pipeline) bind(dev device.Binding, candidate config.Supported, l logrus.FieldLogger) (map[Handle]binding, bool) {
	entries := p.modules.Entries()
	bindings := make(map[Handle]binding, len(entries))
	for _, e := range entries {
		satisfying, ok := config.Satisfy(config.Sequence(e.Item), candidate, dev.Name())
		if !ok {
			l.WithField("module", e.Item.UID()).Debug("no available configuration for module")
			return nil, false
		}
		bindings[e.Handle] = binding{
			actual:   dev.ActualConfig(satisfying),
			async:    satisfying.Async,
			timeSync: satisfying.TimeSync,
		}
	}
	return bindings, true
}

// pushConfigs sets configs on modules in order of registration. If any
// module fails, every module touched so far is reset.
func (p *Pipeline) pushConfigs(bindings map[Handle]binding) error {
	entries := p.modules.Entries()
	for i, e := range entries {
		if err := e.Item.SetConfig(bindings[e.Handle].actual); err != nil {
			for _, touched := range entries[:i+1] {
				touched.Item.ResetConfig()
			}
			return fmt.Errorf("module %s: %w", e.Item.UID(), err)
		}
	}
	return nil
}

// releaseDevice closes bound device, if any.
func (p *Pipeline) releaseDevice() {
	if p.device == nil {
		return
	}
	p.closeDevice(p.device)
	p.device = nil
}

func (p *Pipeline) closeDevice(dev device.Binding) {
	if err := protect(dev.Close); err != nil {
		p.log.WithError(err).WithField("device", dev.Name()).Warn("failed to close device")
	}
}
