package sim_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/cvpipe"
	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/device"
	"github.com/dudk/cvpipe/log"
	"github.com/dudk/cvpipe/sample"
	"github.com/dudk/cvpipe/sim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func streamConfig(t config.StreamType, w, h, fps int) config.Supported {
	var c config.Supported
	c.Streams[t] = config.Stream{
		Enabled:   true,
		Size:      config.Size{Width: w, Height: h},
		FrameRate: fps,
	}
	return c
}

func TestOpen(t *testing.T) {
	ctx := &sim.Context{
		Devices: []sim.Device{
			{Name: "depth-only", Streams: []config.StreamType{config.Depth}, NoMotion: true},
			{Name: "slow", MaxFrameRate: 15},
		},
		Logger: log.Silent(),
	}
	deliver := func(*sample.Set) {}

	b, err := ctx.Open(streamConfig(config.Depth, 640, 480, 30), deliver)
	require.NoError(t, err)
	assert.Equal(t, "depth-only", b.Name())
	require.NoError(t, b.Close())

	b, err = ctx.Open(streamConfig(config.Color, 640, 480, 15), deliver)
	require.NoError(t, err)
	assert.Equal(t, "slow", b.Name())
	require.NoError(t, b.Close())

	_, err = ctx.Open(streamConfig(config.Color, 640, 480, 30), deliver)
	assert.ErrorIs(t, err, device.ErrNoDevice)

	c := streamConfig(config.Depth, 640, 480, 30)
	c.DeviceName = "missing"
	_, err = ctx.Open(c, deliver)
	assert.ErrorIs(t, err, device.ErrNoDevice)
}

func TestOpenInvalidRate(t *testing.T) {
	ctx := sim.NewContext(sim.Device{Name: "sim"})
	ctx.Logger = log.Silent()
	deliver := func(*sample.Set) {}

	for _, fps := range []int{-1, sim.MaxRate + 1, 2_000_000_000} {
		_, err := ctx.Open(streamConfig(config.Depth, 4, 4, fps), deliver)
		assert.ErrorIs(t, err, device.ErrNoDevice, "fps %d", fps)
	}

	var c config.Supported
	c.Motions[config.Gyro] = config.Motion{Enabled: true, SampleRate: 2_000_000_000}
	_, err := ctx.Open(c, deliver)
	assert.ErrorIs(t, err, device.ErrNoDevice)

	b, err := ctx.Open(streamConfig(config.Depth, 4, 4, sim.MaxRate), deliver)
	require.NoError(t, err)
	require.NoError(t, b.Activate())
	require.NoError(t, b.Close())
}

func TestActualConfig(t *testing.T) {
	ctx := sim.NewContext(sim.Device{Name: "sim"})
	ctx.Logger = log.Silent()
	c := streamConfig(config.Depth, 640, 480, 0)
	c.Motions[config.Accel] = config.Motion{Enabled: true}
	b, err := ctx.Open(c, func(*sample.Set) {})
	require.NoError(t, err)
	defer b.Close()

	actual := b.Config()
	assert.Equal(t, "sim", actual.DeviceName)
	assert.Equal(t, sim.DefaultFrameRate, actual.Streams[config.Depth].FrameRate)
	assert.Equal(t, sim.DefaultAccelRate, actual.Motions[config.Accel].SampleRate)
	assert.False(t, actual.Streams[config.Color].Enabled)
	assert.False(t, actual.Motions[config.Gyro].Enabled)
}

func TestProduce(t *testing.T) {
	var (
		mu     sync.Mutex
		images int
	)
	ctx := sim.NewContext(sim.Device{Name: "sim"})
	ctx.Logger = log.Silent()
	c := streamConfig(config.Depth, 4, 4, 200)
	b, err := ctx.Open(c, func(s *sample.Set) {
		mu.Lock()
		defer mu.Unlock()
		if img := s.Image(config.Depth); img != nil && len(img.Data) == 16 {
			images++
		}
	})
	require.NoError(t, err)

	require.NoError(t, b.Activate())
	assert.Eventually(t, func() bool {
		return b.(*sim.Binding).Produced() >= 5
	}, time.Second, time.Millisecond)
	require.NoError(t, b.Deactivate())

	produced := b.(*sim.Binding).Produced()
	mu.Lock()
	assert.Equal(t, int(produced), images)
	mu.Unlock()
	assert.Zero(t, b.(*sim.Binding).Outstanding())
	require.NoError(t, b.Close())
	assert.Error(t, b.Activate())
}

func TestPipeline(t *testing.T) {
	ctx := sim.NewContext(sim.Device{Name: "sim"})
	ctx.Logger = log.Silent()
	p := cvpipe.New(ctx, cvpipe.WithLogger(log.Silent()))
	defer p.Close()

	depth := streamConfig(config.Depth, 8, 8, 100)
	depth.Async = true
	color := streamConfig(config.Color, 8, 8, 100)
	slow := sim.NewModule([]config.Supported{depth}, sim.WithLoad(5*time.Millisecond), sim.WithHistory(3))
	fast := sim.NewModule([]config.Supported{color})
	assert.NotEqual(t, slow.UID(), fast.UID())

	_, err := p.AddModule(slow)
	require.NoError(t, err)
	_, err = p.AddModule(fast)
	require.NoError(t, err)

	require.NoError(t, p.Start(nil))
	assert.True(t, slow.Actual().Streams[config.Depth].Enabled)
	assert.True(t, fast.Actual().Streams[config.Color].Enabled)
	assert.Eventually(t, func() bool {
		return slow.Stats().Processed >= 3 && fast.Stats().Processed >= 3
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, p.Stop())
	dev := p.Device().(*sim.Binding)
	assert.Zero(t, dev.Outstanding())
	assert.Equal(t, 1, slow.Stats().Flushes)
	assert.LessOrEqual(t, fast.Stats().Processed, int(dev.Produced()))
}
