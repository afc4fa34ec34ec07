package fanout_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/internal/fanout"
	"github.com/dudk/cvpipe/sample"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errProcess = errors.New("process failed")

func depthConfig() config.Actual {
	var c config.Actual
	c.Streams[config.Depth] = config.Stream{Enabled: true, Size: config.Size{Width: 640, Height: 480}, FrameRate: 30}
	return c
}

// newSet returns a depth set and a counter of its releases.
func newSet(n uint64) (*sample.Set, *atomic.Int32) {
	released := &atomic.Int32{}
	s := sample.NewBuilder().
		Image(sample.Image{Stream: config.Depth, Number: n}).
		OnRelease(func() { released.Add(1) }).
		Build()
	return s, released
}

func TestDeliverExactlyOnce(t *testing.T) {
	var (
		mu       sync.Mutex
		received = map[string][]uint64{}
		wg       sync.WaitGroup
	)
	record := func(name string) fanout.ProcessFunc {
		return func(s *sample.Set) error {
			mu.Lock()
			received[name] = append(received[name], s.Image(config.Depth).Number)
			mu.Unlock()
			wg.Done()
			return nil
		}
	}
	set := fanout.NewSet(nil)
	set.Swap([]fanout.Consumer{
		fanout.NewSync(fanout.Options{Name: "app"}, record("app")),
		fanout.NewAsync(fanout.Options{Name: "async", Config: depthConfig()}, record("async"), 16),
		fanout.NewSync(fanout.Options{Name: "sync", Config: depthConfig()}, record("sync")),
	})
	assert.Equal(t, 3, set.Len())

	sets := 10
	wg.Add(3 * sets)
	for i := 0; i < sets; i++ {
		s, _ := newSet(uint64(i))
		set.Deliver(s)
		s.Release()
	}
	wg.Wait()
	require.NoError(t, set.Clear())
	assert.Equal(t, 0, set.Len())

	expected := []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	for _, name := range []string{"app", "async", "sync"} {
		assert.Equal(t, expected, received[name], name)
	}
}

func TestSlowAsyncDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	slow := fanout.NewAsync(fanout.Options{Name: "slow"}, func(*sample.Set) error {
		<-block
		return nil
	}, 1)

	delivered := make(chan time.Time, 1)
	fast := fanout.NewSync(fanout.Options{Name: "fast"}, func(*sample.Set) error {
		delivered <- time.Now()
		return nil
	})

	set := fanout.NewSet(nil)
	set.Swap([]fanout.Consumer{slow, fast})

	// first set is stuck in slow consumer, second fills the queue, third
	// drops the second.
	for i := 0; i < 3; i++ {
		s, _ := newSet(uint64(i))
		start := time.Now()
		set.Deliver(s)
		s.Release()
		select {
		case at := <-delivered:
			assert.Less(t, at.Sub(start), 100*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("sync consumer was delayed by async consumer")
		}
	}
	close(block)
	require.NoError(t, set.Clear())
}

func TestAsyncDropsOldest(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var (
		mu        sync.Mutex
		processed []uint64
	)
	c := fanout.NewAsync(fanout.Options{Name: "slow"}, func(s *sample.Set) error {
		mu.Lock()
		processed = append(processed, s.Image(config.Depth).Number)
		first := len(processed) == 1
		mu.Unlock()
		if first {
			close(started)
			<-block
		}
		return nil
	}, 2)

	releases := make([]*atomic.Int32, 0, 5)
	for i := 0; i < 5; i++ {
		s, released := newSet(uint64(i))
		releases = append(releases, released)
		c.Notify(s)
		s.Release()
		if i == 0 {
			<-started
		}
	}
	// 0 is processing, 1 and 2 were dropped, 3 and 4 are queued.
	assert.Equal(t, int32(1), releases[1].Load())
	assert.Equal(t, int32(1), releases[2].Load())
	assert.Equal(t, int32(0), releases[4].Load())

	close(block)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 3
	}, time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, []uint64{0, 3, 4}, processed)
	for i, r := range releases {
		assert.Equal(t, int32(1), r.Load(), "set %d", i)
	}
}

func TestClearReleasesQueued(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	c := fanout.NewAsync(fanout.Options{Name: "slow"}, func(*sample.Set) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, 4)
	set := fanout.NewSet(nil)
	set.Swap([]fanout.Consumer{c})

	var releases []*atomic.Int32
	for i := 0; i < 3; i++ {
		s, released := newSet(uint64(i))
		releases = append(releases, released)
		set.Deliver(s)
		s.Release()
	}
	<-started

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block)
	}()
	require.NoError(t, set.Clear())
	for i, r := range releases {
		assert.Equal(t, int32(1), r.Load(), "set %d", i)
	}
	// second close is no-op
	assert.NoError(t, c.Close())
}

func TestCloseTimeout(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	c := fanout.NewAsync(fanout.Options{Name: "stuck", CloseTimeout: 10 * time.Millisecond}, func(*sample.Set) error {
		close(started)
		<-block
		return nil
	}, 4)

	s, released := newSet(0)
	c.Notify(s)
	s.Release()
	<-started

	err := c.Close()
	assert.ErrorIs(t, err, fanout.ErrCloseTimeout)
	assert.ErrorIs(t, c.Close(), fanout.ErrCloseTimeout)
	assert.Equal(t, int32(0), released.Load())

	close(block)
	assert.Eventually(t, func() bool {
		return released.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestRelevance(t *testing.T) {
	var calls atomic.Int32
	count := func(*sample.Set) error {
		calls.Add(1)
		return nil
	}
	cfg := depthConfig()
	cfg.Streams[config.Color] = config.Stream{Enabled: true, Size: config.Size{Width: 640, Height: 480}, FrameRate: 30}

	loose := fanout.NewSync(fanout.Options{Name: "loose", Config: cfg}, count)
	strict := fanout.NewSync(fanout.Options{Name: "strict", Config: cfg, TimeSync: config.SyncRequired}, count)

	depthOnly, _ := newSet(1)
	loose.Notify(depthOnly)
	assert.Equal(t, int32(1), calls.Load())
	strict.Notify(depthOnly)
	assert.Equal(t, int32(1), calls.Load())

	gyroOnly := sample.NewBuilder().Motion(sample.Motion{Sensor: config.Gyro}).Build()
	loose.Notify(gyroOnly)
	assert.Equal(t, int32(1), calls.Load())

	both := sample.NewBuilder().
		Image(sample.Image{Stream: config.Depth}).
		Image(sample.Image{Stream: config.Color}).
		Build()
	strict.Notify(both)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallbacks(t *testing.T) {
	var errs, done int
	c := fanout.NewSync(fanout.Options{
		Name:    "failing",
		OnError: func(err error) { assert.ErrorIs(t, err, errProcess); errs++ },
		OnDone:  func() { done++ },
	}, func(s *sample.Set) error {
		if s.Image(config.Depth).Number%2 == 0 {
			return errProcess
		}
		return nil
	})
	for i := 0; i < 4; i++ {
		s, _ := newSet(uint64(i))
		c.Notify(s)
	}
	assert.Equal(t, 2, errs)
	assert.Equal(t, 2, done)
}

type failingConsumer struct {
	fanout.Consumer
}

func (failingConsumer) Close() error { return errProcess }
func (failingConsumer) Name() string { return "failing" }

func TestCloseJoinsErrors(t *testing.T) {
	err := fanout.Close([]fanout.Consumer{
		failingConsumer{},
		fanout.NewSync(fanout.Options{Name: "ok"}, nil),
		failingConsumer{},
	})
	assert.ErrorIs(t, err, errProcess)
	assert.Contains(t, err.Error(), "consumer failing")
}
