// Package fileops provides small filesystem helpers shared by the validator,
// adapter, and controller.
package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// audioExts are the recognized input extensions (lower case).
var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".wma":  true,
}

// IsAudioFile checks if the path has a recognized audio extension
// (case-insensitive).
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Exists checks if a file or directory exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes a file, ignoring already-missing targets.
func Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// UniquePath returns path if taken reports it free, otherwise the first
// numbered variant ({stem}_2{ext}, {stem}_3{ext}, ...) that is. Used to
// disambiguate output collisions within one batch deterministically instead
// of letting two jobs overwrite each other.
func UniquePath(path string, taken func(string) bool) string {
	if !taken(path) {
		return path
	}

	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}
