package scroll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/scroll-stitch/internal/cv"
	"jordanella.com/scroll-stitch/internal/events"
)

// stallOnFirstGrab makes the capture goroutine take the engine lock right
// after its first grab, so no frame can be processed until the test
// unlocks e.mu. The returned channel closes once the lock is held.
func stallOnFirstGrab(e *Engine, source *scrollingSource) <-chan struct{} {
	held := make(chan struct{})
	source.afterGrab = func(n int) {
		if n == 1 {
			e.mu.Lock()
			close(held)
		}
	}
	return held
}

func waitHeld(t *testing.T, held <-chan struct{}) {
	t.Helper()
	select {
	case <-held:
	case <-time.After(5 * time.Second):
		t.Fatal("capture never started")
	}
}

func TestSchedulerRunsToMaxAttempts(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 10}
	e := newTestEngine(source)

	opts := testOptions()
	opts.MaxScrollAttempts = 5
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 100, 50), cv.Vertical, opts))

	shot, err := NewScheduler(e).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxAttempts, shot.Reason)
	assert.Equal(t, 5, shot.FrameCount)
	assert.Equal(t, 90, shot.Height)
	assert.Equal(t, StateIdle, e.State())
}

func TestSchedulerStopsAtEndOfContent(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 12, stopAfter: 3}
	e := newTestEngine(source)

	opts := testOptions()
	opts.MaxIdleCycles = 2
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 80, 40), cv.Vertical, opts))

	shot, err := NewScheduler(e).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonEndOfContent, shot.Reason)
	assert.Equal(t, 3, shot.FrameCount)
	assert.Equal(t, 64, shot.Height)
}

func TestSchedulerCaptureFailuresAreFatal(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 10, failing: true}
	e := newTestEngine(source)
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 100, 50), cv.Vertical, testOptions()))

	shot, err := NewScheduler(e).Run(context.Background())
	assert.Nil(t, shot)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.Equal(t, 3, source.Grabs())
	assert.Equal(t, StateIdle, e.State())
}

func TestSchedulerCancelFinalizes(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 5}
	e := newTestEngine(source)

	opts := testOptions()
	opts.MaxScrollAttempts = 100000
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 60, 30), cv.Vertical, opts))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var (
		shot *Screenshot
		err  error
	)
	go func() {
		defer close(done)
		shot, err = NewScheduler(e).Run(ctx)
	}()

	require.Eventually(t, func() bool { return e.Status().FrameCount >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, shot.Reason)
	assert.GreaterOrEqual(t, shot.FrameCount, 3)
	assert.Equal(t, StateIdle, e.State())
}

func TestSchedulerClearStopsRun(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 5}
	e := newTestEngine(source)

	opts := testOptions()
	opts.MaxScrollAttempts = 100000
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 60, 30), cv.Vertical, opts))

	done := make(chan error, 1)
	go func() {
		_, err := NewScheduler(e).Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return e.Status().FrameCount >= 2 }, 5*time.Second, 5*time.Millisecond)
	e.Clear()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCleared)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after Clear")
	}

	grabs := source.Grabs()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, grabs, source.Grabs(), "no captures after Clear")
	assert.Equal(t, StateIdle, e.State())
}

func TestSchedulerExplicitFinalize(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 5}
	e := newTestEngine(source)

	opts := testOptions()
	opts.MaxScrollAttempts = 100000
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 60, 30), cv.Vertical, opts))

	type outcome struct {
		shot *Screenshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		shot, err := NewScheduler(e).Run(context.Background())
		done <- outcome{shot, err}
	}()

	require.Eventually(t, func() bool { return e.Status().FrameCount >= 2 }, 5*time.Second, 5*time.Millisecond)
	shot, err := e.Finalize()
	require.NoError(t, err)
	assert.Equal(t, ReasonExplicit, shot.Reason)

	res := <-done
	require.NoError(t, res.err)
	assert.Same(t, shot, res.shot)
}

func TestSchedulerRequiresSession(t *testing.T) {
	e := newTestEngine(&scrollingSource{dir: cv.Vertical, step: 5})

	_, err := NewScheduler(e).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSchedulerDropsOldestWhenProcessingLags(t *testing.T) {
	bus := events.NewEventBus(256)
	var dropEvents atomic.Int32
	bus.Subscribe(events.EventTypeFrameDropped, func(events.Event) { dropEvents.Add(1) })

	source := &scrollingSource{dir: cv.Vertical, step: 10}
	e := newTestEngine(source).WithEventBus(bus)

	opts := testOptions()
	opts.SampleRate = 1000
	opts.QueueCapacity = 1
	opts.MaxScrollAttempts = 6
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 100, 50), cv.Vertical, opts))

	held := stallOnFirstGrab(e, source)
	type outcome struct {
		shot *Screenshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		shot, err := NewScheduler(e).Run(context.Background())
		done <- outcome{shot, err}
	}()

	waitHeld(t, held)
	require.Eventually(t, func() bool { return source.Grabs() >= 10 }, 5*time.Second, time.Millisecond)
	e.mu.Unlock()

	res := <-done
	require.NoError(t, res.err)
	bus.Stop()

	shot := res.shot
	assert.Equal(t, ReasonMaxAttempts, shot.Reason)
	assert.GreaterOrEqual(t, shot.FrameCount, 1)
	assert.LessOrEqual(t, shot.FrameCount, opts.MaxScrollAttempts)
	assert.GreaterOrEqual(t, shot.DroppedFrames, uint64(5), "one queue slot while ten frames were captured")
	assert.Greater(t, source.Grabs(), opts.MaxScrollAttempts)
	assert.GreaterOrEqual(t, uint64(dropEvents.Load()), shot.DroppedFrames)
}

func TestSchedulerStatusReportsDroppedFrames(t *testing.T) {
	source := &scrollingSource{dir: cv.Vertical, step: 5}
	e := newTestEngine(source)

	opts := testOptions()
	opts.SampleRate = 1000
	opts.QueueCapacity = 1
	opts.MaxScrollAttempts = 100000
	opts.MaxIdleCycles = 100000
	require.NoError(t, e.Init(cv.NewRegion(0, 0, 60, 30), cv.Vertical, opts))

	held := stallOnFirstGrab(e, source)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Screenshot, 1)
	go func() {
		shot, err := NewScheduler(e).Run(ctx)
		assert.NoError(t, err)
		done <- shot
	}()

	waitHeld(t, held)
	require.Eventually(t, func() bool { return source.Grabs() >= 6 }, 5*time.Second, time.Millisecond)
	e.mu.Unlock()

	st := e.Status()
	assert.Contains(t, []State{StateInitialized, StateRunning}, st.State)
	assert.Greater(t, st.DroppedFrames, uint64(0))

	require.Eventually(t, func() bool { return e.Status().FrameCount >= 1 }, 5*time.Second, time.Millisecond)
	cancel()
	shot := <-done
	require.NotNil(t, shot)
	assert.Equal(t, ReasonCancelled, shot.Reason)
	assert.GreaterOrEqual(t, shot.DroppedFrames, st.DroppedFrames)
}
