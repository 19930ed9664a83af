package media

import (
	"fmt"
	"path/filepath"
)

// Quality is the closed set of output tiers. Free-form strings never reach
// the transcoding adapter; every tier maps to explicit encoder parameters.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality validates a configured quality string.
func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return Quality(s), nil
	default:
		return "", fmt.Errorf("invalid video quality %q (must be low, medium, or high)", s)
	}
}

// VideoParams are the encoder parameters a quality tier maps to.
type VideoParams struct {
	Width        int
	Height       int
	FPS          int
	VideoBitrate string
}

// Params returns the encoder parameters for the tier. Unknown tiers fall
// back to medium so a stale config value cannot produce a broken command.
func (q Quality) Params() VideoParams {
	switch q {
	case QualityLow:
		return VideoParams{Width: 854, Height: 480, FPS: 24, VideoBitrate: "300k"}
	case QualityHigh:
		return VideoParams{Width: 1920, Height: 1080, FPS: 30, VideoBitrate: "2M"}
	default:
		return VideoParams{Width: 1280, Height: 720, FPS: 30, VideoBitrate: "1M"}
	}
}

// VideoFile is a successfully produced conversion output. It references its
// source audio by path only; the owning job holds the AudioFile itself.
type VideoFile struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	SourcePath string `json:"source_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FPS        int    `json:"fps"`
	SizeBytes  int64  `json:"size_bytes"`
}

// NewVideoFile builds the output descriptor for a finished conversion.
func NewVideoFile(outputPath string, source AudioFile, q Quality, sizeBytes int64) VideoFile {
	p := q.Params()
	return VideoFile{
		Path:       outputPath,
		Filename:   filepath.Base(outputPath),
		SourcePath: source.Path,
		Width:      p.Width,
		Height:     p.Height,
		FPS:        p.FPS,
		SizeBytes:  sizeBytes,
	}
}

// OutputPath derives the target video path for an audio file:
// {stem}_video.mp4 beside the source, or in outputDir when overridden.
func OutputPath(a AudioFile, outputDir string) string {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(a.Path)
	}
	return filepath.Join(dir, a.Stem()+"_video.mp4")
}

// ConversionSpec is everything the transcoding adapter needs for one run.
type ConversionSpec struct {
	InputPath        string
	OutputPath       string
	DurationSeconds  float64
	Quality          Quality
	PreserveMetadata bool
}
