// Package validator decides whether a dropped path is eligible for
// conversion and extracts the audio metadata downstream components need.
// Validation is read-only and never reaches the controller as a fault: an
// invalid file simply produces no job.
package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/internal/fileops"
	"github.com/waveframe/internal/media"
	"github.com/waveframe/pkg/logger"
)

// Result is the outcome of validating one path. Invalid results always carry
// a classified error with a user-presentable message.
type Result struct {
	IsValid bool
	Audio   media.AudioFile
	Err     *errs.Error
}

// Validator inspects candidate input files. The probe is injectable so tests
// can validate without a real ffprobe binary.
type Validator struct {
	probe prober
}

// New creates a validator backed by the given ffprobe binary.
func New(ffprobePath string) *Validator {
	return &Validator{probe: &ffprobe{path: ffprobePath, runner: &execRunner{}}}
}

// Validate runs the eligibility checks in fixed order, short-circuiting on
// the first failure: existence/readability, extension, structural probe,
// size bound. Cheap checks run first so obviously-bad input never pays for
// a probe.
func (v *Validator) Validate(ctx context.Context, path string) Result {
	abs, err := filepath.Abs(path)
	if err != nil {
		return invalid(errs.Wrap(errs.CodeFileNotFound, err, "invalid path: %s", path))
	}

	info, err := os.Stat(abs)
	if err != nil {
		return invalid(errs.FromOSError(err, abs))
	}
	if info.IsDir() {
		return invalid(errs.New(errs.CodeFileInvalidFormat, "not a file: %s", filepath.Base(abs)))
	}
	if f, err := os.Open(abs); err != nil {
		return invalid(errs.FromOSError(err, abs))
	} else {
		f.Close()
	}

	if !fileops.IsAudioFile(abs) {
		return invalid(errs.New(errs.CodeFileInvalidFormat,
			"unsupported file format: %s", filepath.Base(abs)))
	}

	probed, perr := v.probe.Probe(ctx, abs)
	if perr != nil {
		return invalid(perr)
	}
	if probed.DurationSeconds <= 0 {
		return invalid(errs.New(errs.CodeFileCorrupted,
			"file has no playable duration: %s", filepath.Base(abs)))
	}

	if info.Size() == 0 {
		return invalid(errs.New(errs.CodeFileCorrupted, "file is empty: %s", filepath.Base(abs)))
	}
	if info.Size() > media.MaxAudioFileSize {
		return invalid(errs.New(errs.CodeFileTooLarge,
			"file exceeds 2GB size limit: %s", filepath.Base(abs)))
	}

	audio := media.AudioFile{
		Path:            abs,
		Filename:        filepath.Base(abs),
		SizeBytes:       info.Size(),
		DurationSeconds: probed.DurationSeconds,
		SampleRate:      probed.SampleRate,
		Bitrate:         probed.Bitrate,
		Metadata:        probed.Tags,
		IsValid:         true,
	}

	logger.Debugf("Validated %s (%.1fs, %d Hz)", audio.Filename, audio.DurationSeconds, audio.SampleRate)
	return Result{IsValid: true, Audio: audio}
}

func invalid(err *errs.Error) Result {
	return Result{IsValid: false, Err: err}
}

// Message formats the result's failure for display, with suggested action.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	if action := r.Err.Action(); action != "" {
		return fmt.Sprintf("%s %s", r.Err.Message, action)
	}
	return r.Err.Message
}
