package storage

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAlreadyExists      = errors.New("file already exists")
	ErrIsDirectory        = errors.New("path is a directory")
	ErrInvalidName        = errors.New("invalid file name")
	ErrWriteFailed        = errors.New("write failed")
	ErrReadFailed         = errors.New("read failed")
	ErrTooLarge           = errors.New("file too large")
	ErrPermissionDenied   = errors.New("permission denied")
)

// Error is a failed gateway operation.
type Error struct {
	Op   string // "save", "load", "mkdir"
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Notice returns the short user-facing text for a gateway failure.
func Notice(err error) string {
	switch {
	case err == nil:
		return "File saved"
	case errors.Is(err, ErrStorageUnavailable):
		return "No access to storage"
	case errors.Is(err, ErrAlreadyExists):
		return "File already exists"
	case errors.Is(err, ErrIsDirectory):
		return "File is a directory"
	case errors.Is(err, ErrTooLarge):
		return "File too big"
	case errors.Is(err, ErrReadFailed):
		return "Failed to read file"
	default:
		return "Failed to save file"
	}
}
