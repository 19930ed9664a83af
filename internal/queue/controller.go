// Package queue owns the conversion job lifecycle: FIFO submission,
// bounded-concurrency dispatch to the transcoding adapter, cancellation,
// and the process-wide application state the GUI renders from.
package queue

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/internal/fileops"
	"github.com/waveframe/internal/media"
	"github.com/waveframe/pkg/logger"
)

// ErrJobNotFound is returned when an ID matches no known job.
var ErrJobNotFound = errors.New("job not found")

// ErrJobFinished is returned when cancelling an already-terminal job.
var ErrJobFinished = errors.New("job already finished")

// Transcoder runs one conversion to completion. Implementations must honor
// ctx cancellation by terminating their subprocess and cleaning up partial
// output before returning an OPERATION_CANCELLED error.
type Transcoder interface {
	Convert(ctx context.Context, spec media.ConversionSpec, onProgress func(percent float64)) error
}

// Settings are the user-configurable knobs the controller applies to new
// jobs. They originate from the settings collaborator.
type Settings struct {
	OutputDirectory   string
	Quality           media.Quality
	PreserveMetadata  bool
	MaxConcurrentJobs int
	MaxPendingJobs    int
	CompletedCapacity int
}

// CompletionResult is the terminal report for one job, mirrored to the GUI.
type CompletionResult struct {
	JobID                 string  `json:"job_id"`
	Success               bool    `json:"success"`
	OutputPath            string  `json:"output_path,omitempty"`
	ErrorCode             string  `json:"error_code,omitempty"`
	ErrorMessage          string  `json:"error_message,omitempty"`
	SuggestedAction       string  `json:"suggested_action,omitempty"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// Snapshot is a consistent copy of the application state for rendering.
type Snapshot struct {
	Active            []JobView      `json:"active"`
	Completed         []JobView      `json:"completed"`
	Running           bool           `json:"running"`
	OutputDirectory   string         `json:"output_directory"`
	Quality           media.Quality  `json:"quality"`
	PreserveMetadata  bool           `json:"preserve_metadata"`
	MaxConcurrentJobs int            `json:"max_concurrent_jobs"`
	Stats             map[string]int `json:"stats"`
}

// eventKind discriminates coordinator messages from adapter workers.
type eventKind int

const (
	progressEvent eventKind = iota
	doneEvent
)

type workerEvent struct {
	kind    eventKind
	jobID   string
	percent float64
	err     error
}

// Controller is the conversion coordinator. A single goroutine (run) owns
// all job and state mutation; adapter workers report back over the events
// channel and never touch shared state themselves. One job failing never
// halts the jobs queued behind it.
type Controller struct {
	transcoder Transcoder
	bus        *Bus

	mu             sync.Mutex
	settings       Settings
	state          *State
	cancels        map[string]context.CancelFunc
	inFlight       int
	running        bool
	batchSucceeded int
	batchFailed    int

	events chan workerEvent
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// GUI callbacks. Set before Start; must be fast and non-blocking.
	OnProgress    func(jobID string, percent float64)
	OnComplete    func(result CompletionResult)
	OnAllComplete func(succeeded, failed int)
}

// NewController creates an idle controller. Call Start to begin draining.
func NewController(transcoder Transcoder, settings Settings, bus *Bus) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	if bus == nil {
		bus = NewBus(0)
	}
	return &Controller{
		transcoder: transcoder,
		bus:        bus,
		settings:   settings,
		state:      NewState(settings.CompletedCapacity),
		cancels:    make(map[string]context.CancelFunc),
		events:     make(chan workerEvent, 64),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Bus exposes the event feed for GUI polling.
func (c *Controller) Bus() *Bus { return c.bus }

// Enqueue appends a QUEUED job for a validated audio file and returns its
// ID immediately; it never blocks on conversion. Beyond the configured
// pending capacity it rejects with QUEUE_CAPACITY_EXCEEDED. Output paths
// are disambiguated here so no two active jobs target the same file.
func (c *Controller) Enqueue(audio media.AudioFile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.QueuedCount() >= c.settings.MaxPendingJobs {
		return "", errs.New(errs.CodeQueueCapacityExceeded,
			"conversion queue is full (%d jobs pending)", c.settings.MaxPendingJobs)
	}

	outputPath := media.OutputPath(audio, c.settings.OutputDirectory)
	outputPath = fileops.UniquePath(outputPath, c.state.OutputPathTaken)

	job := NewJob(audio, outputPath, c.settings.Quality, c.settings.PreserveMetadata)
	c.state.Add(job)

	c.bus.Publish(Event{
		Type:    EventTypeStatus,
		JobID:   job.ID,
		Status:  StatusQueued,
		Message: audio.Filename,
	})
	logger.Infof("Queued %s (job %s)", audio.Filename, shortID(job.ID))

	c.signalWake()
	return job.ID, nil
}

// Start launches the coordinator and begins draining the queue in strict
// FIFO submission order. Idempotent.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
	logger.Info("Conversion controller started")
}

// Stop cancels every in-flight conversion and waits for workers to exit.
func (c *Controller) Stop() {
	c.cancel()
	c.wg.Wait()
}

// run is the coordinator loop: the only writer of job status and state.
func (c *Controller) run() {
	defer c.wg.Done()

	c.dispatch()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
			c.dispatch()
		case ev := <-c.events:
			switch ev.kind {
			case progressEvent:
				c.handleProgress(ev)
			case doneEvent:
				c.handleDone(ev)
				c.dispatch()
			}
		}
	}
}

// dispatch starts queued jobs while concurrency slots are free.
func (c *Controller) dispatch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.inFlight < c.settings.MaxConcurrentJobs {
		job := c.state.NextQueued()
		if job == nil {
			return
		}
		if err := job.Start(); err != nil {
			// Guarded transition refused: controller bug, skip loudly.
			logger.Errorf("Dispatch bug for job %s: %v", shortID(job.ID), err)
			return
		}

		c.inFlight++
		ctx, cancel := context.WithCancel(c.ctx)
		c.cancels[job.ID] = cancel

		c.bus.Publish(Event{
			Type:    EventTypeStatus,
			JobID:   job.ID,
			Status:  StatusProcessing,
			Message: job.Audio.Filename,
		})
		logger.Infof("Converting %s (job %s)", job.Audio.Filename, shortID(job.ID))

		id := job.ID
		spec := job.Spec()
		c.wg.Add(1)
		go c.runJob(ctx, id, spec)
	}
}

// runJob supervises one adapter execution on its own goroutine. It only
// sends messages back to the coordinator; it never mutates jobs or state.
func (c *Controller) runJob(ctx context.Context, id string, spec media.ConversionSpec) {
	defer c.wg.Done()

	err := c.transcoder.Convert(ctx, spec, func(percent float64) {
		// Progress is lossy by design: dropping an update when the
		// coordinator is busy is better than stalling the subprocess.
		select {
		case c.events <- workerEvent{kind: progressEvent, jobID: id, percent: percent}:
		default:
		}
	})

	select {
	case c.events <- workerEvent{kind: doneEvent, jobID: id, err: err}:
	case <-c.ctx.Done():
	}
}

func (c *Controller) handleProgress(ev workerEvent) {
	c.mu.Lock()
	job := c.state.JobByID(ev.jobID)
	if job == nil || job.Status() != StatusProcessing {
		c.mu.Unlock()
		return
	}
	if err := job.UpdateProgress(ev.percent); err != nil {
		c.mu.Unlock()
		return
	}
	percent := job.Progress()
	c.bus.Publish(Event{
		Type:    EventTypeProgress,
		JobID:   ev.jobID,
		Status:  StatusProcessing,
		Percent: percent,
	})
	cb := c.OnProgress
	c.mu.Unlock()

	if cb != nil {
		cb(ev.jobID, percent)
	}
}

func (c *Controller) handleDone(ev workerEvent) {
	c.mu.Lock()
	job := c.state.JobByID(ev.jobID)
	if cancel, ok := c.cancels[ev.jobID]; ok {
		cancel()
		delete(c.cancels, ev.jobID)
	}
	c.inFlight--

	if job == nil || job.Status() != StatusProcessing {
		c.mu.Unlock()
		logger.Errorf("Completion for unknown or non-processing job %s", shortID(ev.jobID))
		return
	}

	var result CompletionResult
	switch {
	case ev.err == nil:
		video := media.NewVideoFile(job.OutputPath, job.Audio, job.Quality, fileSize(job.OutputPath))
		if err := job.Complete(video); err != nil {
			logger.Errorf("Completion bug for job %s: %v", shortID(job.ID), err)
		}
		c.batchSucceeded++
		result = CompletionResult{
			JobID:                 job.ID,
			Success:               true,
			OutputPath:            job.OutputPath,
			ProcessingTimeSeconds: job.ProcessingSeconds(),
		}
		logger.Infof("Completed %s -> %s", job.Audio.Filename, job.OutputPath)

	case errs.IsCancelled(ev.err) || job.CancelRequested():
		if err := job.Cancel(); err != nil {
			logger.Errorf("Cancel bug for job %s: %v", shortID(job.ID), err)
		}
		c.batchFailed++
		result = CompletionResult{
			JobID:                 job.ID,
			ErrorCode:             string(errs.CodeOperationCancelled),
			ErrorMessage:          "conversion cancelled",
			SuggestedAction:       errs.ActionFor(errs.CodeOperationCancelled),
			ProcessingTimeSeconds: job.ProcessingSeconds(),
		}
		logger.Infof("Cancelled %s", job.Audio.Filename)

	default:
		code := errs.CodeOf(ev.err)
		if err := job.Fail(code, userMessage(ev.err)); err != nil {
			logger.Errorf("Fail bug for job %s: %v", shortID(job.ID), err)
		}
		c.batchFailed++
		result = CompletionResult{
			JobID:                 job.ID,
			ErrorCode:             string(code),
			ErrorMessage:          job.ErrorMessage(),
			SuggestedAction:       errs.ActionFor(code),
			ProcessingTimeSeconds: job.ProcessingSeconds(),
		}
		logger.Errorf("Failed %s: %v", job.Audio.Filename, ev.err)
	}

	c.finalizeLocked(job, result)
}

// finalizeLocked moves a terminal job to the completed history, publishes
// its result, and emits the batch notification when the active list drains.
// Releases c.mu.
func (c *Controller) finalizeLocked(job *Job, result CompletionResult) {
	c.state.MoveToCompleted(job)
	c.bus.Publish(Event{
		Type:    EventTypeResult,
		JobID:   job.ID,
		Status:  job.Status(),
		Percent: job.Progress(),
		Message: result.ErrorMessage,
	})

	allDone := c.running && c.state.ActiveEmpty()
	var succeeded, failed int
	if allDone {
		succeeded, failed = c.batchSucceeded, c.batchFailed
		c.batchSucceeded, c.batchFailed = 0, 0
	}
	onComplete := c.OnComplete
	onAll := c.OnAllComplete
	c.mu.Unlock()

	if onComplete != nil {
		onComplete(result)
	}
	if allDone {
		c.bus.Publish(Event{Type: EventTypeBatch, Succeeded: succeeded, Failed: failed})
		logger.Infof("Batch complete: %d succeeded, %d failed", succeeded, failed)
		if onAll != nil {
			onAll(succeeded, failed)
		}
	}
}

// Cancel cancels one job. QUEUED jobs transition directly to CANCELLED
// without ever reaching the adapter; PROCESSING jobs get a cancellation
// request forwarded to their worker, and the CANCELLED transition is
// finalized by handleDone once the subprocess is confirmed dead.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()

	job := c.state.JobByID(id)
	if job == nil {
		c.mu.Unlock()
		return ErrJobNotFound
	}

	switch job.Status() {
	case StatusQueued:
		if err := job.Cancel(); err != nil {
			c.mu.Unlock()
			return err
		}
		c.batchFailed++
		result := CompletionResult{
			JobID:           job.ID,
			ErrorCode:       string(errs.CodeOperationCancelled),
			ErrorMessage:    "conversion cancelled",
			SuggestedAction: errs.ActionFor(errs.CodeOperationCancelled),
		}
		logger.Infof("Cancelled queued job %s", shortID(id))
		c.finalizeLocked(job, result) // releases c.mu
		return nil

	case StatusProcessing:
		job.RequestCancel()
		if cancel, ok := c.cancels[id]; ok {
			cancel()
		}
		c.mu.Unlock()
		logger.Infof("Cancellation requested for job %s", shortID(id))
		return nil

	default:
		c.mu.Unlock()
		return ErrJobFinished
	}
}

// CancelAll cancels every QUEUED job immediately and requests cancellation
// of all PROCESSING jobs.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	active := append([]*Job(nil), c.state.Active()...)
	c.mu.Unlock()

	for _, job := range active {
		if err := c.Cancel(job.ID); err != nil && !errors.Is(err, ErrJobFinished) {
			logger.Warnf("Cancel %s: %v", shortID(job.ID), err)
		}
	}
}

// Snapshot returns a consistent copy of the application state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Active:            make([]JobView, 0, len(c.state.Active())),
		Completed:         make([]JobView, 0, len(c.state.Completed())),
		Running:           c.running,
		OutputDirectory:   c.settings.OutputDirectory,
		Quality:           c.settings.Quality,
		PreserveMetadata:  c.settings.PreserveMetadata,
		MaxConcurrentJobs: c.settings.MaxConcurrentJobs,
		Stats:             c.state.Stats(),
	}
	for _, j := range c.state.Active() {
		snap.Active = append(snap.Active, j.View())
	}
	for _, j := range c.state.Completed() {
		snap.Completed = append(snap.Completed, j.View())
	}
	return snap
}

// Job returns a snapshot of one job.
func (c *Controller) Job(id string) (JobView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job := c.state.JobByID(id)
	if job == nil {
		return JobView{}, false
	}
	return job.View(), true
}

// ClearCompleted empties the completed history.
func (c *Controller) ClearCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ClearCompleted()
}

// ApplySettings swaps the controller settings. Existing jobs keep the
// output path and quality they were enqueued with; new concurrency takes
// effect on the next dispatch.
func (c *Controller) ApplySettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.state.SetCompletedCapacity(s.CompletedCapacity)
	c.mu.Unlock()
	c.signalWake()
}

func (c *Controller) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func userMessage(err error) string {
	var ce *errs.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
