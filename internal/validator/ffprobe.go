package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/waveframe/internal/errs"
)

// ProbeInfo is the structural metadata extracted from a valid audio file.
type ProbeInfo struct {
	DurationSeconds float64
	SampleRate      int
	Bitrate         int
	Tags            map[string]string
}

// prober abstracts the structural parse so tests can fake it.
type prober interface {
	Probe(ctx context.Context, path string) (ProbeInfo, *errs.Error)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ffprobe parses container structure via the ffprobe binary's JSON output.
type ffprobe struct {
	path   string
	runner commandRunner
}

// probeOutput mirrors the subset of `ffprobe -print_format json` we consume.
type probeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		BitRate  string            `json:"bit_rate"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

func (p *ffprobe) Probe(ctx context.Context, path string) (ProbeInfo, *errs.Error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	stdout, stderr, err := p.runner.Run(ctx, p.path, args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ProbeInfo{}, errs.Wrap(errs.CodeFileCorrupted, err,
				"file could not be decoded: %s (%s)", filepath.Base(path), firstLine(stderr))
		}
		return ProbeInfo{}, errs.Wrap(errs.CodeConversionFailed, err,
			"ffprobe unavailable: %s", p.path)
	}

	var out probeOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return ProbeInfo{}, errs.Wrap(errs.CodeFileCorrupted, err,
			"unreadable probe output for: %s", filepath.Base(path))
	}

	var info ProbeInfo
	hasAudio := false
	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		hasAudio = true
		if info.SampleRate == 0 {
			info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		}
		if info.Bitrate == 0 {
			if br, err := strconv.Atoi(s.BitRate); err == nil {
				info.Bitrate = br / 1000
			}
		}
	}
	if !hasAudio {
		return ProbeInfo{}, errs.New(errs.CodeFileInvalidFormat,
			"no audio stream found in file: %s", filepath.Base(path))
	}

	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	if info.Bitrate == 0 {
		if br, err := strconv.Atoi(out.Format.BitRate); err == nil {
			info.Bitrate = br / 1000
		}
	}
	info.Tags = out.Format.Tags

	return info, nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
