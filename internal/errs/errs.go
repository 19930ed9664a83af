// Package errs defines the conversion error taxonomy. Every failure a user
// can see carries a machine-readable code, a human-readable message, and a
// suggested action.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Code classifies a conversion failure.
type Code string

const (
	CodeFileNotFound          Code = "FILE_NOT_FOUND"
	CodeFileInvalidFormat     Code = "FILE_INVALID_FORMAT"
	CodeFileCorrupted         Code = "FILE_CORRUPTED"
	CodeFileTooLarge          Code = "FILE_TOO_LARGE"
	CodeDiskSpaceLow          Code = "DISK_SPACE_LOW"
	CodePermissionDenied      Code = "PERMISSION_DENIED"
	CodeConversionFailed      Code = "CONVERSION_PROCESS_FAILED"
	CodeOperationCancelled    Code = "OPERATION_CANCELLED"
	CodeQueueCapacityExceeded Code = "QUEUE_CAPACITY_EXCEEDED"
)

// actions maps each code to a suggested user action.
var actions = map[Code]string{
	CodeFileNotFound:          "Check that the file still exists and try again.",
	CodeFileInvalidFormat:     "Only recognized audio files are supported. Check the file format.",
	CodeFileCorrupted:         "The file could not be decoded. Try a different copy of the file.",
	CodeFileTooLarge:          "Files up to 2GB are supported. Use a smaller file.",
	CodeDiskSpaceLow:          "Free up disk space and retry the conversion.",
	CodePermissionDenied:      "Check read permissions on the file and write permissions on the output folder.",
	CodeConversionFailed:      "Retry the conversion. If it keeps failing, check the application log.",
	CodeOperationCancelled:    "Restart the conversion if it was cancelled by mistake.",
	CodeQueueCapacityExceeded: "Wait for queued conversions to finish before adding more files.",
}

// Error is a classified conversion error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Action returns the suggested user action for the error's code.
func (e *Error) Action() string { return actions[e.Code] }

// New creates a classified error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error preserving the underlying cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from err, or CodeConversionFailed for
// unclassified errors. Unexpected faults are never escalated past this.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeConversionFailed
}

// IsCancelled reports whether err represents a user-requested cancellation.
func IsCancelled(err error) bool {
	return CodeOf(err) == CodeOperationCancelled
}

// ActionFor returns the suggested action for a code.
func ActionFor(code Code) string { return actions[code] }

// FromOSError maps filesystem errors onto the taxonomy.
func FromOSError(err error, path string) *Error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, os.ErrNotExist):
		return Wrap(CodeFileNotFound, err, "file not found: %s", path)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, os.ErrPermission):
		return Wrap(CodePermissionDenied, err, "cannot read file: %s", path)
	default:
		return Wrap(CodeConversionFailed, err, "file access error: %s", path)
	}
}
