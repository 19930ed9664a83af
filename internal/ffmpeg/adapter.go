// Package ffmpeg wraps the external ffmpeg process for one conversion:
// black synthetic video track plus the original audio stream, with the
// process stderr translated into normalized progress percentages.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/internal/fileops"
	"github.com/waveframe/internal/media"
	"github.com/waveframe/pkg/logger"
)

const (
	// progressInterval is the minimum wall time between progress emissions
	// per job, regardless of how often ffmpeg prints stats lines.
	progressInterval = time.Second
	// killGrace is how long a cancelled process gets to exit after SIGTERM
	// before it is force-killed.
	killGrace = 5 * time.Second
	// stderrTailSize bounds how much process output we keep for error
	// classification.
	stderrTailSize = 4096
)

// Adapter launches and supervises ffmpeg conversions.
type Adapter struct {
	ffmpegPath string
}

func New(ffmpegPath string) *Adapter {
	return &Adapter{ffmpegPath: ffmpegPath}
}

// Available verifies the ffmpeg binary can be executed and returns its
// version banner line.
func (a *Adapter) Available(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, a.ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available at %q: %w", a.ffmpegPath, err)
	}
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return string(bytes.TrimSpace(out)), nil
}

// Convert runs one conversion to completion. It blocks until the subprocess
// exits, emitting rate-limited progress callbacks along the way. Cancelling
// ctx terminates the subprocess (SIGTERM, then kill after a grace period),
// deletes any partial output, and yields an OPERATION_CANCELLED error —
// Convert only returns after the process has been reaped, so a cancelled
// job is never finalized while ffmpeg still holds file handles.
func (a *Adapter) Convert(ctx context.Context, spec media.ConversionSpec, onProgress func(percent float64)) error {
	if err := fileops.EnsureDir(filepath.Dir(spec.OutputPath)); err != nil {
		return errs.Wrap(errs.CodePermissionDenied, err,
			"cannot create output directory: %s", filepath.Dir(spec.OutputPath))
	}

	args := buildArgs(spec)
	logger.Debugf("ffmpeg %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errs.Wrap(errs.CodeConversionFailed, err, "stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.CodeConversionFailed, err,
			"could not launch ffmpeg for: %s", filepath.Base(spec.InputPath))
	}

	tail := &tailBuffer{max: stderrTailSize}
	mon := newProgressMonitor(spec.DurationSeconds, onProgress)

	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanStatsLines)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		mon.observe(line)
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		_ = fileops.Remove(spec.OutputPath)
		return errs.New(errs.CodeOperationCancelled,
			"conversion cancelled: %s", filepath.Base(spec.InputPath))
	}
	if waitErr != nil {
		return classifyStderr(tail.String(), waitErr, spec.InputPath)
	}

	info, err := os.Stat(spec.OutputPath)
	if err != nil {
		return errs.Wrap(errs.CodeConversionFailed, err,
			"ffmpeg exited cleanly but output is missing: %s", spec.OutputPath)
	}
	if info.Size() == 0 {
		_ = fileops.Remove(spec.OutputPath)
		return errs.New(errs.CodeConversionFailed,
			"ffmpeg produced an empty output: %s", spec.OutputPath)
	}

	mon.finish()
	return nil
}

// buildArgs assembles the ffmpeg invocation: lavfi solid-black source sized
// by quality tier, the source audio, x264 video plus aac audio, overwrite
// destination. -shortest bounds the infinite lavfi source to the audio.
func buildArgs(spec media.ConversionSpec) []string {
	p := spec.Quality.Params()

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", "lavfi",
		"-t", fmt.Sprintf("%.3f", spec.DurationSeconds),
		"-i", fmt.Sprintf("color=black:size=%dx%d:rate=%d", p.Width, p.Height, p.FPS),
		"-i", spec.InputPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "libx264",
		"-b:v", p.VideoBitrate,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
	}
	if spec.PreserveMetadata {
		args = append(args, "-map_metadata", "1")
	}
	args = append(args, "-shortest", spec.OutputPath)
	return args
}

// classifyStderr maps a failed run onto the error taxonomy using the
// captured stderr tail. Anything unrecognized is CONVERSION_PROCESS_FAILED;
// adapter failures never escalate past the controller's dispatch loop.
func classifyStderr(tail string, waitErr error, inputPath string) *errs.Error {
	base := filepath.Base(inputPath)
	switch {
	case strings.Contains(tail, "No space left on device"):
		return errs.Wrap(errs.CodeDiskSpaceLow, waitErr, "disk full while converting: %s", base)
	case strings.Contains(tail, "Permission denied"):
		return errs.Wrap(errs.CodePermissionDenied, waitErr, "permission denied while converting: %s", base)
	default:
		return errs.Wrap(errs.CodeConversionFailed, waitErr,
			"ffmpeg failed for %s: %s", base, lastLine(tail))
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// tailBuffer keeps the last max bytes of output, line-oriented.
type tailBuffer struct {
	max   int
	lines []string
	size  int
}

func (b *tailBuffer) add(line string) {
	b.lines = append(b.lines, line)
	b.size += len(line) + 1
	for b.size > b.max && len(b.lines) > 1 {
		b.size -= len(b.lines[0]) + 1
		b.lines = b.lines[1:]
	}
}

func (b *tailBuffer) String() string {
	return strings.Join(b.lines, "\n")
}

// scanStatsLines splits on \n or \r. ffmpeg rewrites its stats line in place
// with carriage returns, so a newline-only scanner would see progress once.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
