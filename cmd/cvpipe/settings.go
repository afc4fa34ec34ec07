package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/sim"
)

// Settings describes simulated setup the pipeline is run with.
type Settings struct {
	Debug       bool             `mapstructure:"debug" yaml:"debug"`
	Duration    time.Duration    `mapstructure:"duration" yaml:"duration"`
	Listen      string           `mapstructure:"listen" yaml:"listen,omitempty"`
	QueueSize   int              `mapstructure:"queuesize" yaml:"queuesize"`
	Devices     []DeviceSettings `mapstructure:"devices" yaml:"devices"`
	Restriction ConfigSettings   `mapstructure:"restriction" yaml:"restriction"`
	Modules     []ModuleSettings `mapstructure:"modules" yaml:"modules"`
}

// DeviceSettings describes a simulated device.
type DeviceSettings struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	MaxFrameRate int      `mapstructure:"maxframerate" yaml:"maxframerate,omitempty"`
	Streams      []string `mapstructure:"streams" yaml:"streams,omitempty"`
	NoMotion     bool     `mapstructure:"nomotion" yaml:"nomotion,omitempty"`
}

// ModuleSettings describes a simulated module.
type ModuleSettings struct {
	Name    string           `mapstructure:"name" yaml:"name"`
	Load    time.Duration    `mapstructure:"load" yaml:"load,omitempty"`
	History int              `mapstructure:"history" yaml:"history,omitempty"`
	Configs []ConfigSettings `mapstructure:"configs" yaml:"configs"`
}

// ConfigSettings is a readable form of capture config.
type ConfigSettings struct {
	Device   string                    `mapstructure:"device" yaml:"device,omitempty"`
	TimeSync string                    `mapstructure:"timesync" yaml:"timesync,omitempty"`
	Async    bool                      `mapstructure:"async" yaml:"async,omitempty"`
	Streams  map[string]StreamSettings `mapstructure:"streams" yaml:"streams,omitempty"`
	Motions  map[string]MotionSettings `mapstructure:"motions" yaml:"motions,omitempty"`
}

// StreamSettings describes an image stream. Zero fps means any rate.
type StreamSettings struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
	FPS    int `mapstructure:"fps" yaml:"fps,omitempty"`
}

// MotionSettings describes a motion sensor. Zero rate means any rate.
type MotionSettings struct {
	Rate int `mapstructure:"rate" yaml:"rate,omitempty"`
}

// loadSettings reads settings from config file, environment and flags of
// the command. Flags take precedence.
func loadSettings(path string, cmd *cobra.Command) (*Settings, error) {
	v := viper.New()
	v.SetDefault("duration", 5*time.Second)
	v.SetDefault("queuesize", 4)
	v.SetEnvPrefix("cvpipe")
	v.AutomaticEnv()
	for _, name := range []string{"debug", "duration", "listen"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if len(s.Devices) == 0 {
		s.Devices = []DeviceSettings{{Name: "sim0"}}
	}
	return &s, nil
}

// SimDevices converts device settings.
func (s *Settings) SimDevices() ([]sim.Device, error) {
	devices := make([]sim.Device, 0, len(s.Devices))
	for _, d := range s.Devices {
		dev := sim.Device{
			Name:         d.Name,
			MaxFrameRate: d.MaxFrameRate,
			NoMotion:     d.NoMotion,
		}
		for _, name := range d.Streams {
			t, err := config.ParseStreamType(name)
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", d.Name, err)
			}
			dev.Streams = append(dev.Streams, t)
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Supported converts settings into a supported config.
func (c ConfigSettings) Supported() (config.Supported, error) {
	var (
		s   = config.Supported{DeviceName: c.Device, Async: c.Async}
		err error
	)
	if s.TimeSync, err = config.ParseTimeSync(c.TimeSync); err != nil {
		return config.Supported{}, err
	}
	for name, st := range c.Streams {
		t, err := config.ParseStreamType(name)
		if err != nil {
			return config.Supported{}, err
		}
		s.Streams[t] = config.Stream{
			Enabled:   true,
			Size:      config.Size{Width: st.Width, Height: st.Height},
			FrameRate: st.FPS,
		}
	}
	for name, m := range c.Motions {
		t, err := config.ParseMotionType(name)
		if err != nil {
			return config.Supported{}, err
		}
		s.Motions[t] = config.Motion{Enabled: true, SampleRate: m.Rate}
	}
	return s, nil
}

func fromSupported(s config.Supported) ConfigSettings {
	c := fromActual(config.Actual{
		DeviceName: s.DeviceName,
		Streams:    s.Streams,
		Motions:    s.Motions,
	})
	c.Async = s.Async
	if s.TimeSync != config.SyncNotRequired {
		c.TimeSync = s.TimeSync.String()
	}
	return c
}

func fromActual(a config.Actual) ConfigSettings {
	c := ConfigSettings{Device: a.DeviceName}
	for i, st := range a.Streams {
		if !st.Enabled {
			continue
		}
		if c.Streams == nil {
			c.Streams = make(map[string]StreamSettings)
		}
		c.Streams[config.StreamType(i).String()] = StreamSettings{
			Width:  st.Size.Width,
			Height: st.Size.Height,
			FPS:    st.FrameRate,
		}
	}
	for i, m := range a.Motions {
		if !m.Enabled {
			continue
		}
		if c.Motions == nil {
			c.Motions = make(map[string]MotionSettings)
		}
		c.Motions[config.MotionType(i).String()] = MotionSettings{Rate: m.SampleRate}
	}
	return c
}
