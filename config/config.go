// Package config describes capture configurations and negotiates a single
// device configuration that satisfies every module.
//
// Two kinds of configurations exist. Supported is what a module declares it
// can work with, or what a user wants to restrict the device to. Actual is
// the concrete configuration produced by a bound device. Supported values are
// comparable, so they can be used as map keys and compared with ==.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEndOfConfigs is returned by module config queries when the index is
// past the last declared configuration.
var ErrEndOfConfigs = errors.New("end of configs")

// StreamType identifies an image stream of the device.
type StreamType int

// Image streams.
const (
	Depth StreamType = iota
	Color
	Infrared
	Infrared2
	Fisheye
)

// StreamCount is the number of image stream types.
const StreamCount = 5

// MotionType identifies a motion sensor of the device.
type MotionType int

// Motion sensors.
const (
	Accel MotionType = iota
	Gyro
)

// MotionCount is the number of motion sensor types.
const MotionCount = 2

var (
	streamNames = [StreamCount]string{"depth", "color", "infrared", "infrared2", "fisheye"}
	motionNames = [MotionCount]string{"accel", "gyro"}
)

func (t StreamType) String() string {
	if t < 0 || int(t) >= StreamCount {
		return fmt.Sprintf("stream(%d)", int(t))
	}
	return streamNames[t]
}

func (t MotionType) String() string {
	if t < 0 || int(t) >= MotionCount {
		return fmt.Sprintf("motion(%d)", int(t))
	}
	return motionNames[t]
}

// ParseStreamType returns stream type by its name.
func ParseStreamType(s string) (StreamType, error) {
	for i, name := range streamNames {
		if strings.EqualFold(s, name) {
			return StreamType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stream type %q", s)
}

// ParseMotionType returns motion type by its name.
func ParseMotionType(s string) (MotionType, error) {
	for i, name := range motionNames {
		if strings.EqualFold(s, name) {
			return MotionType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown motion type %q", s)
}

// Flags are sample flags requested for a stream or motion sensor.
type Flags uint32

// Sample flags.
const (
	FlagsNone     Flags = 0
	FlagsExternal Flags = 1
)

// TimeSync defines if samples of different streams must be time aligned
// before they are delivered. Higher values are stricter.
type TimeSync int

// Time sync modes.
const (
	// SyncNotRequired delivers every sample as soon as it's available.
	SyncNotRequired TimeSync = iota
	// SyncAcceptUnmatched delivers aligned sets, but also sets where some
	// of the streams are missing.
	SyncAcceptUnmatched
	// SyncRequired delivers only sets with all enabled streams present.
	SyncRequired
)

func (m TimeSync) String() string {
	switch m {
	case SyncNotRequired:
		return "not-required"
	case SyncAcceptUnmatched:
		return "accept-unmatched"
	case SyncRequired:
		return "required"
	}
	return fmt.Sprintf("sync(%d)", int(m))
}

// ParseTimeSync returns time sync mode by its name. Empty name means
// SyncNotRequired.
func ParseTimeSync(s string) (TimeSync, error) {
	if s == "" {
		return SyncNotRequired, nil
	}
	for _, m := range []TimeSync{SyncNotRequired, SyncAcceptUnmatched, SyncRequired} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown time sync mode %q", s)
}

// Size is an image resolution in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Stream describes an image stream. Zero FrameRate in a supported config
// means that any frame rate is accepted.
type Stream struct {
	Enabled   bool
	Size      Size
	FrameRate int
	Flags     Flags
}

// Motion describes a motion sensor. Zero SampleRate in a supported config
// means that any rate is accepted.
type Motion struct {
	Enabled    bool
	SampleRate int
	Flags      Flags
}

// Supported is a configuration declared by a module or requested by user.
// Empty DeviceName matches any device.
type Supported struct {
	DeviceName string
	Streams    [StreamCount]Stream
	Motions    [MotionCount]Motion
	TimeSync   TimeSync
	Async      bool
}

// IsEmpty returns true if no stream and no motion sensor is enabled.
func (c Supported) IsEmpty() bool {
	for i := range c.Streams {
		if c.Streams[i].Enabled {
			return false
		}
	}
	for i := range c.Motions {
		if c.Motions[i].Enabled {
			return false
		}
	}
	return true
}

// String returns compact representation of enabled streams and motions.
func (c Supported) String() string {
	var parts []string
	if c.DeviceName != "" {
		parts = append(parts, "device="+c.DeviceName)
	}
	for i, s := range c.Streams {
		if s.Enabled {
			parts = append(parts, fmt.Sprintf("%v=%v@%d", StreamType(i), s.Size, s.FrameRate))
		}
	}
	for i, m := range c.Motions {
		if m.Enabled {
			parts = append(parts, fmt.Sprintf("%v@%d", MotionType(i), m.SampleRate))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

// Actual is a configuration bound to a device. All rates are concrete.
type Actual struct {
	DeviceName string
	Streams    [StreamCount]Stream
	Motions    [MotionCount]Motion
}

// IsEmpty returns true if no stream and no motion sensor is enabled.
func (c Actual) IsEmpty() bool {
	return Supported{Streams: c.Streams, Motions: c.Motions}.IsEmpty()
}

// Default returns the superset config used when pipeline is started
// without any explicit configuration.
func Default() Supported {
	var c Supported
	for i := range c.Streams {
		c.Streams[i] = Stream{
			Enabled:   true,
			Size:      Size{Width: 640, Height: 480},
			FrameRate: 30,
		}
	}
	c.Motions[Accel] = Motion{Enabled: true, SampleRate: 250}
	c.Motions[Gyro] = Motion{Enabled: true, SampleRate: 200}
	return c
}
