// Package media holds the file models shared by the validator, queue, and
// transcoding adapter.
package media

import "path/filepath"

// MaxAudioFileSize is the largest input accepted for conversion.
const MaxAudioFileSize = 2 << 30 // 2GB

// AudioFile is a validated conversion input. It is populated once by the
// validator and never mutated afterwards.
type AudioFile struct {
	Path            string            `json:"path"`
	Filename        string            `json:"filename"`
	SizeBytes       int64             `json:"size_bytes"`
	DurationSeconds float64           `json:"duration_seconds"`
	SampleRate      int               `json:"sample_rate"`
	Bitrate         int               `json:"bitrate"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IsValid         bool              `json:"is_valid"`
}

// Stem returns the filename without its extension.
func (a AudioFile) Stem() string {
	ext := filepath.Ext(a.Filename)
	return a.Filename[:len(a.Filename)-len(ext)]
}
