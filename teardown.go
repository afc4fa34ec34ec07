package cvpipe

// teardown stops delivery of sets in an order that guarantees the device
// is deactivated only when no consumer or module holds its samples:
// consumers are closed first, then modules are flushed, then the device is
// deactivated. It must be called with mu held. Every step is executed even
// if previous one failed.
func (p *Pipeline) teardown() error {
	var e TeardownError
	e.ErrConsumers = p.consumers.Clear()
	for _, m := range p.modules.Items() {
		m.Flush()
	}
	if p.device != nil {
		e.ErrDevice = protect(p.device.Deactivate)
	}
	return e.ret()
}
