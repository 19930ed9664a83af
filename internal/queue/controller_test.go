package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/internal/media"
)

// fakeTranscoder records conversion order and delegates to a configurable
// convert function.
type fakeTranscoder struct {
	mu      sync.Mutex
	order   []string
	convert func(ctx context.Context, spec media.ConversionSpec, onProgress func(percent float64)) error
}

func (f *fakeTranscoder) Convert(ctx context.Context, spec media.ConversionSpec, onProgress func(percent float64)) error {
	f.mu.Lock()
	f.order = append(f.order, spec.InputPath)
	f.mu.Unlock()
	if f.convert != nil {
		return f.convert(ctx, spec, onProgress)
	}
	return nil
}

func (f *fakeTranscoder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func testSettings() Settings {
	return Settings{
		OutputDirectory:   "/out",
		Quality:           media.QualityMedium,
		MaxConcurrentJobs: 1,
		MaxPendingJobs:    50,
		CompletedCapacity: 20,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControllerFIFOOrder(t *testing.T) {
	fake := &fakeTranscoder{}
	c := NewController(fake, testSettings(), NewBus(1024))
	defer c.Stop()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := c.Enqueue(testAudio(fmt.Sprintf("t%d.mp3", i)))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	c.Start()

	waitFor(t, "all jobs completed", func() bool {
		return len(c.Snapshot().Completed) == 4
	})

	calls := fake.calls()
	for i, path := range []string{"/music/t0.mp3", "/music/t1.mp3", "/music/t2.mp3", "/music/t3.mp3"} {
		if calls[i] != path {
			t.Fatalf("conversion %d = %s, want %s", i, calls[i], path)
		}
	}
	for _, id := range ids {
		view, ok := c.Job(id)
		if !ok || view.Status != StatusCompleted {
			t.Errorf("job %s status = %s, want completed", shortID(id), view.Status)
		}
		if view.Progress != 100 {
			t.Errorf("job %s progress = %v, want 100", shortID(id), view.Progress)
		}
	}
}

func TestControllerFailureIsolation(t *testing.T) {
	fake := &fakeTranscoder{
		convert: func(_ context.Context, spec media.ConversionSpec, _ func(float64)) error {
			if spec.InputPath == "/music/bad.mp3" {
				return errs.New(errs.CodeConversionFailed, "encoder exploded")
			}
			return nil
		},
	}
	c := NewController(fake, testSettings(), nil)
	defer c.Stop()

	var batchSucceeded, batchFailed int
	batchDone := make(chan struct{})
	c.OnAllComplete = func(succeeded, failed int) {
		batchSucceeded, batchFailed = succeeded, failed
		close(batchDone)
	}

	goodID, _ := c.Enqueue(testAudio("good.mp3"))
	badID, _ := c.Enqueue(testAudio("bad.mp3"))
	afterID, _ := c.Enqueue(testAudio("after.mp3"))
	c.Start()

	select {
	case <-batchDone:
	case <-time.After(5 * time.Second):
		t.Fatal("batch notification never fired")
	}

	if batchSucceeded != 2 || batchFailed != 1 {
		t.Errorf("batch = %d succeeded, %d failed; want 2/1", batchSucceeded, batchFailed)
	}
	if v, _ := c.Job(badID); v.Status != StatusFailed || v.ErrorCode != string(errs.CodeConversionFailed) {
		t.Errorf("bad job = %s/%s", v.Status, v.ErrorCode)
	}
	for _, id := range []string{goodID, afterID} {
		if v, _ := c.Job(id); v.Status != StatusCompleted {
			t.Errorf("job %s status = %s, want completed", shortID(id), v.Status)
		}
	}
}

func TestControllerCancelQueuedNeverConverts(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeTranscoder{
		convert: func(ctx context.Context, _ media.ConversionSpec, _ func(float64)) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return errs.New(errs.CodeOperationCancelled, "cancelled")
			}
		},
	}
	c := NewController(fake, testSettings(), nil)
	defer c.Stop()

	firstID, _ := c.Enqueue(testAudio("first.mp3"))
	queuedID, _ := c.Enqueue(testAudio("second.mp3"))
	c.Start()

	waitFor(t, "first job processing", func() bool {
		v, _ := c.Job(firstID)
		return v.Status == StatusProcessing
	})

	if err := c.Cancel(queuedID); err != nil {
		t.Fatalf("Cancel queued: %v", err)
	}
	if v, _ := c.Job(queuedID); v.Status != StatusCancelled {
		t.Fatalf("queued job status = %s, want cancelled", v.Status)
	}

	close(release)
	waitFor(t, "queue drained", func() bool {
		return c.Snapshot().Stats["processing"] == 0
	})

	for _, path := range fake.calls() {
		if path == "/music/second.mp3" {
			t.Error("cancelled queued job reached the transcoder")
		}
	}
}

func TestControllerCancelProcessing(t *testing.T) {
	started := make(chan struct{})
	fake := &fakeTranscoder{
		convert: func(ctx context.Context, _ media.ConversionSpec, _ func(float64)) error {
			close(started)
			<-ctx.Done()
			return errs.New(errs.CodeOperationCancelled, "conversion cancelled")
		},
	}
	c := NewController(fake, testSettings(), nil)
	defer c.Stop()

	id, _ := c.Enqueue(testAudio("long.mp3"))
	c.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("conversion never started")
	}

	if err := c.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitFor(t, "job cancelled", func() bool {
		v, _ := c.Job(id)
		return v.Status == StatusCancelled
	})
	if v, _ := c.Job(id); v.ErrorCode != string(errs.CodeOperationCancelled) {
		t.Errorf("error code = %s", v.ErrorCode)
	}

	if err := c.Cancel(id); !errors.Is(err, ErrJobFinished) {
		t.Errorf("Cancel terminal job = %v, want ErrJobFinished", err)
	}
}

func TestControllerCancelUnknownJob(t *testing.T) {
	c := NewController(&fakeTranscoder{}, testSettings(), nil)
	defer c.Stop()
	if err := c.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel unknown = %v, want ErrJobNotFound", err)
	}
}

func TestControllerQueueCapacity(t *testing.T) {
	settings := testSettings()
	settings.MaxPendingJobs = 2
	c := NewController(&fakeTranscoder{}, settings, nil)
	defer c.Stop()

	// Controller not started, so both stay queued.
	if _, err := c.Enqueue(testAudio("a.mp3")); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	if _, err := c.Enqueue(testAudio("b.mp3")); err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}
	_, err := c.Enqueue(testAudio("c.mp3"))
	if err == nil {
		t.Fatal("third enqueue should be rejected")
	}
	if errs.CodeOf(err) != errs.CodeQueueCapacityExceeded {
		t.Errorf("error code = %s, want QUEUE_CAPACITY_EXCEEDED", errs.CodeOf(err))
	}
}

func TestControllerOutputPathDisambiguation(t *testing.T) {
	c := NewController(&fakeTranscoder{}, testSettings(), nil)
	defer c.Stop()

	first := testAudio("track.mp3")
	second := testAudio("track.wav")
	second.Path = "/music/track.wav"

	firstID, _ := c.Enqueue(first)
	secondID, _ := c.Enqueue(second)

	v1, _ := c.Job(firstID)
	v2, _ := c.Job(secondID)
	if v1.OutputPath != "/out/track_video.mp4" {
		t.Errorf("first output = %q", v1.OutputPath)
	}
	if v2.OutputPath != "/out/track_video_2.mp4" {
		t.Errorf("second output = %q, want _2 suffix", v2.OutputPath)
	}
}

func TestControllerProgressEvents(t *testing.T) {
	fake := &fakeTranscoder{
		convert: func(_ context.Context, _ media.ConversionSpec, onProgress func(float64)) error {
			for _, p := range []float64{25, 50, 75} {
				onProgress(p)
				time.Sleep(time.Millisecond)
			}
			return nil
		},
	}
	bus := NewBus(1024)
	c := NewController(fake, testSettings(), bus)
	defer c.Stop()

	id, _ := c.Enqueue(testAudio("a.mp3"))
	c.Start()

	waitFor(t, "job completed", func() bool {
		v, _ := c.Job(id)
		return v.Status == StatusCompleted
	})

	last := -1.0
	for _, ev := range bus.Since(0) {
		if ev.Type != EventTypeProgress {
			continue
		}
		if ev.Percent < last {
			t.Errorf("progress regressed: %v after %v", ev.Percent, last)
		}
		last = ev.Percent
	}
}

func TestControllerCancelAll(t *testing.T) {
	started := make(chan struct{})
	fake := &fakeTranscoder{
		convert: func(ctx context.Context, _ media.ConversionSpec, _ func(float64)) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return errs.New(errs.CodeOperationCancelled, "conversion cancelled")
		},
	}
	c := NewController(fake, testSettings(), nil)
	defer c.Stop()

	for i := 0; i < 3; i++ {
		c.Enqueue(testAudio(fmt.Sprintf("t%d.mp3", i)))
	}
	c.Start()
	<-started

	c.CancelAll()

	waitFor(t, "everything cancelled", func() bool {
		snap := c.Snapshot()
		if len(snap.Active) != 0 {
			return false
		}
		for _, v := range snap.Completed {
			if v.Status != StatusCancelled {
				return false
			}
		}
		return len(snap.Completed) == 3
	})
}

// gatedTranscoder holds every conversion open until release is closed and
// tracks how many run at once.
type gatedTranscoder struct {
	mu      sync.Mutex
	current int
	peak    int
	release chan struct{}
}

func (g *gatedTranscoder) Convert(ctx context.Context, _ media.ConversionSpec, _ func(percent float64)) error {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-ctx.Done():
	}

	g.mu.Lock()
	g.current--
	g.mu.Unlock()
	return nil
}

func (g *gatedTranscoder) running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func TestControllerConcurrencyBound(t *testing.T) {
	for _, n := range []int{1, 2} {
		t.Run(fmt.Sprintf("max_%d", n), func(t *testing.T) {
			gate := &gatedTranscoder{release: make(chan struct{})}
			settings := testSettings()
			settings.MaxConcurrentJobs = n
			c := NewController(gate, settings, nil)
			defer c.Stop()

			for i := 0; i < n+2; i++ {
				if _, err := c.Enqueue(testAudio(fmt.Sprintf("t%d.mp3", i))); err != nil {
					t.Fatalf("Enqueue: %v", err)
				}
			}
			c.Start()

			waitFor(t, "all slots busy", func() bool {
				return gate.running() == n
			})

			// Hold the gate shut and watch for over-dispatch.
			for i := 0; i < 20; i++ {
				if got := c.Snapshot().Stats["processing"]; got > n {
					t.Fatalf("processing = %d, exceeds max %d", got, n)
				}
				if got := gate.running(); got > n {
					t.Fatalf("concurrent conversions = %d, exceeds max %d", got, n)
				}
				time.Sleep(2 * time.Millisecond)
			}

			close(gate.release)
			waitFor(t, "queue drained", func() bool {
				return len(c.Snapshot().Completed) == n+2
			})

			if gate.peak != n {
				t.Errorf("peak concurrent conversions = %d, want exactly %d", gate.peak, n)
			}
		})
	}
}

func TestControllerBatchCountersReset(t *testing.T) {
	fake := &fakeTranscoder{}
	c := NewController(fake, testSettings(), nil)
	defer c.Stop()

	batches := make(chan [2]int, 2)
	c.OnAllComplete = func(succeeded, failed int) {
		batches <- [2]int{succeeded, failed}
	}

	c.Enqueue(testAudio("a.mp3"))
	c.Enqueue(testAudio("b.mp3"))
	c.Start()

	first := <-batches
	if first != [2]int{2, 0} {
		t.Fatalf("first batch = %v, want {2 0}", first)
	}

	c.Enqueue(testAudio("c.mp3"))
	second := <-batches
	if second != [2]int{1, 0} {
		t.Fatalf("second batch = %v, want {1 0}; counters leaked", second)
	}
}

func TestControllerApplySettings(t *testing.T) {
	c := NewController(&fakeTranscoder{}, testSettings(), nil)
	defer c.Stop()

	next := testSettings()
	next.OutputDirectory = "/elsewhere"
	next.Quality = media.QualityHigh
	next.MaxConcurrentJobs = 3
	c.ApplySettings(next)

	id, _ := c.Enqueue(testAudio("a.mp3"))
	v, _ := c.Job(id)
	if v.OutputPath != "/elsewhere/a_video.mp4" {
		t.Errorf("output path = %q", v.OutputPath)
	}

	snap := c.Snapshot()
	if snap.Quality != media.QualityHigh || snap.MaxConcurrentJobs != 3 {
		t.Errorf("snapshot settings = %+v", snap)
	}
}

func TestControllerClearCompleted(t *testing.T) {
	c := NewController(&fakeTranscoder{}, testSettings(), nil)
	defer c.Stop()

	id, _ := c.Enqueue(testAudio("a.mp3"))
	c.Start()
	waitFor(t, "job completed", func() bool {
		return len(c.Snapshot().Completed) == 1
	})

	c.ClearCompleted()
	if len(c.Snapshot().Completed) != 0 {
		t.Error("completed list not cleared")
	}
	if _, ok := c.Job(id); ok {
		t.Error("cleared job still findable")
	}
}
