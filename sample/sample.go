// Package sample provides correlated sample sets delivered by capture
// devices.
//
// A Set is immutable once built and is shared between all consumers at the
// same time. Its lifetime is tracked with a reference counter: the producer
// owns the first reference, every holder that keeps the set beyond a
// callback must Retain it and Release it when done. When the last reference
// is released, the release hook provided by producer is called, so device
// owned memory can be reused.
package sample

import (
	"sync/atomic"
	"time"

	"github.com/dudk/cvpipe/config"
)

// Image is a single frame of an image stream.
type Image struct {
	Stream    config.StreamType
	Size      config.Size
	FrameRate int
	Timestamp time.Duration
	Number    uint64
	Data      []byte
}

// Motion is a single sample of a motion sensor.
type Motion struct {
	Sensor    config.MotionType
	Timestamp time.Duration
	Data      [3]float32
}

// Set is a time correlated bundle of images and motion samples.
type Set struct {
	images  [config.StreamCount]*Image
	motions [config.MotionCount]*Motion
	refs    atomic.Int32
	release func()
}

// Builder collects samples for a new set.
type Builder struct {
	set *Set
}

// NewBuilder returns builder for a new set.
func NewBuilder() *Builder {
	return &Builder{set: &Set{}}
}

// Image adds image to the set. Previous image of the same stream is
// replaced.
func (b *Builder) Image(img Image) *Builder {
	if int(img.Stream) < 0 || int(img.Stream) >= config.StreamCount {
		return b
	}
	b.set.images[img.Stream] = &img
	return b
}

// Motion adds motion sample to the set.
func (b *Builder) Motion(m Motion) *Builder {
	if int(m.Sensor) < 0 || int(m.Sensor) >= config.MotionCount {
		return b
	}
	b.set.motions[m.Sensor] = &m
	return b
}

// OnRelease sets a hook called once the last reference is released.
func (b *Builder) OnRelease(fn func()) *Builder {
	b.set.release = fn
	return b
}

// Build returns the set with a single reference owned by caller. Builder
// must not be used after Build.
func (b *Builder) Build() *Set {
	s := b.set
	b.set = nil
	s.refs.Store(1)
	return s
}

// Image returns the image of provided stream or nil if the set doesn't
// contain it. Returned image must not be modified.
func (s *Set) Image(t config.StreamType) *Image {
	if int(t) < 0 || int(t) >= config.StreamCount {
		return nil
	}
	return s.images[t]
}

// Motion returns the sample of provided sensor or nil if the set doesn't
// contain it.
func (s *Set) Motion(t config.MotionType) *Motion {
	if int(t) < 0 || int(t) >= config.MotionCount {
		return nil
	}
	return s.motions[t]
}

// Covers reports if the set contains any of streams and motions enabled in
// c. If all is true, the set must contain every one of them.
func (s *Set) Covers(c config.Actual, all bool) bool {
	enabled, present := 0, 0
	for i, st := range c.Streams {
		if !st.Enabled {
			continue
		}
		enabled++
		if s.images[i] != nil {
			present++
		}
	}
	for i, m := range c.Motions {
		if !m.Enabled {
			continue
		}
		enabled++
		if s.motions[i] != nil {
			present++
		}
	}
	if all {
		return enabled > 0 && present == enabled
	}
	return present > 0
}

// Retain adds a reference to the set.
func (s *Set) Retain() *Set {
	s.refs.Add(1)
	return s
}

// Release drops a reference. The release hook is called when the last
// reference is dropped.
func (s *Set) Release() {
	n := s.refs.Add(-1)
	if n == 0 && s.release != nil {
		s.release()
	}
	if n < 0 {
		panic("sample: set released too many times")
	}
}

// Refs returns current number of references.
func (s *Set) Refs() int {
	return int(s.refs.Load())
}
