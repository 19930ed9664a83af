package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/internal/media"
)

// Status represents the current state of a conversion job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job represents one audio-to-video conversion. A job exclusively owns its
// AudioFile and, on success, its VideoFile. Transitions are guarded: an
// illegal transition returns an error, which signals a controller bug rather
// than a user-facing condition. Only the controller mutates a Job.
type Job struct {
	ID               string
	Audio            media.AudioFile
	Video            *media.VideoFile
	OutputPath       string
	Quality          media.Quality
	PreserveMetadata bool

	status          Status
	progress        float64
	etaSeconds      float64
	cancelRequested bool
	errCode         errs.Code
	errMessage      string
	queuedAt        time.Time
	startedAt       time.Time
	completedAt     time.Time
}

// NewJob creates a QUEUED job for a validated audio file.
func NewJob(audio media.AudioFile, outputPath string, q media.Quality, preserveMetadata bool) *Job {
	return &Job{
		ID:               uuid.New().String(),
		Audio:            audio,
		OutputPath:       outputPath,
		Quality:          q,
		PreserveMetadata: preserveMetadata,
		status:           StatusQueued,
		queuedAt:         time.Now(),
	}
}

func (j *Job) Status() Status        { return j.status }
func (j *Job) Progress() float64     { return j.progress }
func (j *Job) CancelRequested() bool { return j.cancelRequested }
func (j *Job) ErrorMessage() string  { return j.errMessage }
func (j *Job) ErrorCode() errs.Code  { return j.errCode }

// Start transitions QUEUED -> PROCESSING.
func (j *Job) Start() error {
	if j.status != StatusQueued {
		return fmt.Errorf("invalid transition: %s -> %s", j.status, StatusProcessing)
	}
	j.status = StatusProcessing
	j.startedAt = time.Now()
	j.progress = 0
	return nil
}

// UpdateProgress records a new percentage. Only legal while PROCESSING.
// Regressions are dropped so observed progress is monotonically
// non-decreasing; the remaining-time estimate is derived from the rate.
func (j *Job) UpdateProgress(percent float64) error {
	if j.status != StatusProcessing {
		return fmt.Errorf("cannot update progress in state %s", j.status)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < j.progress {
		return nil
	}
	j.progress = percent

	if percent > 0 {
		elapsed := time.Since(j.startedAt).Seconds()
		j.etaSeconds = elapsed * (100 - percent) / percent
	}
	return nil
}

// Complete transitions PROCESSING -> COMPLETED with the produced video.
func (j *Job) Complete(video media.VideoFile) error {
	if j.status != StatusProcessing {
		return fmt.Errorf("invalid transition: %s -> %s", j.status, StatusCompleted)
	}
	j.status = StatusCompleted
	j.Video = &video
	j.progress = 100
	j.etaSeconds = 0
	j.completedAt = time.Now()
	return nil
}

// Fail transitions PROCESSING -> FAILED with a classified error.
func (j *Job) Fail(code errs.Code, message string) error {
	if j.status != StatusProcessing {
		return fmt.Errorf("invalid transition: %s -> %s", j.status, StatusFailed)
	}
	j.status = StatusFailed
	j.errCode = code
	j.errMessage = message
	j.etaSeconds = 0
	j.completedAt = time.Now()
	return nil
}

// Cancel transitions QUEUED or PROCESSING -> CANCELLED.
func (j *Job) Cancel() error {
	if j.status.Terminal() {
		return fmt.Errorf("invalid transition: %s -> %s", j.status, StatusCancelled)
	}
	j.status = StatusCancelled
	j.errCode = errs.CodeOperationCancelled
	j.etaSeconds = 0
	j.completedAt = time.Now()
	return nil
}

// RequestCancel marks a processing job as cancel-pending. The CANCELLED
// transition itself is finalized only once the adapter confirms the
// subprocess has terminated.
func (j *Job) RequestCancel() {
	j.cancelRequested = true
}

// Spec builds the adapter request for this job.
func (j *Job) Spec() media.ConversionSpec {
	return media.ConversionSpec{
		InputPath:        j.Audio.Path,
		OutputPath:       j.OutputPath,
		DurationSeconds:  j.Audio.DurationSeconds,
		Quality:          j.Quality,
		PreserveMetadata: j.PreserveMetadata,
	}
}

// ProcessingSeconds returns how long the job ran (or has been running).
func (j *Job) ProcessingSeconds() float64 {
	if j.startedAt.IsZero() {
		return 0
	}
	end := j.completedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(j.startedAt).Seconds()
}

// JobView is an immutable snapshot of a job, safe to hand to the GUI layer.
type JobView struct {
	ID                        string           `json:"id"`
	Filename                  string           `json:"filename"`
	InputPath                 string           `json:"input_path"`
	OutputPath                string           `json:"output_path"`
	Status                    Status           `json:"status"`
	Progress                  float64          `json:"progress"`
	EstimatedRemainingSeconds float64          `json:"estimated_remaining_seconds,omitempty"`
	ErrorCode                 string           `json:"error_code,omitempty"`
	ErrorMessage              string           `json:"error_message,omitempty"`
	QueuedAt                  time.Time        `json:"queued_at"`
	StartedAt                 *time.Time       `json:"started_at,omitempty"`
	CompletedAt               *time.Time       `json:"completed_at,omitempty"`
	Video                     *media.VideoFile `json:"video,omitempty"`
}

// View copies the job into a JobView. Caller must hold the controller lock.
func (j *Job) View() JobView {
	v := JobView{
		ID:                        j.ID,
		Filename:                  j.Audio.Filename,
		InputPath:                 j.Audio.Path,
		OutputPath:                j.OutputPath,
		Status:                    j.status,
		Progress:                  j.progress,
		EstimatedRemainingSeconds: j.etaSeconds,
		ErrorMessage:              j.errMessage,
		QueuedAt:                  j.queuedAt,
	}
	if j.errCode != "" {
		v.ErrorCode = string(j.errCode)
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		v.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		v.CompletedAt = &t
	}
	if j.Video != nil {
		video := *j.Video
		v.Video = &video
	}
	return v
}
