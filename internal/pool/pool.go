// Package pool provides cache of frame buffer pools.
//
// Devices allocate image buffers from pools and free them when sample set
// is released, so buffers are reused once no consumer holds them. Pools
// are shared by all devices with the same frame sizes.
package pool

import (
	"sync"
)

// Pool allocates buffers of a fixed size.
type Pool struct {
	size int
	pool sync.Pool
}

// Alloc returns a buffer. Its content is undefined.
func (p *Pool) Alloc() []byte {
	if b, ok := p.pool.Get().(*[]byte); ok {
		return *b
	}
	return make([]byte, p.size)
}

// Free returns buffer to the pool. Buffers of other sizes are ignored.
func (p *Pool) Free(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

var m = struct {
	sync.Mutex
	pools map[int]*Pool
}{
	pools: map[int]*Pool{},
}

// Get returns pool for provided buffer size. Pools are cached internally,
// so multiple calls for the same size return the same pool instance.
func Get(size int) *Pool {
	m.Lock()
	defer m.Unlock()
	if p, ok := m.pools[size]; ok {
		return p
	}

	p := &Pool{size: size}
	m.pools[size] = p
	return p
}
