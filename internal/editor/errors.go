package editor

import (
	"errors"
	"fmt"
)

var (
	ErrCommitInProgress = errors.New("a commit is already in progress")
	ErrTornDown         = errors.New("editing session has ended")

	errHandleReused = errors.New("preview handle used more than once")
	errHandleAstray = errors.New("preview handle is not staged at this path")
)

// ValidationError rejects a single operation. Nothing changed.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UploadError aborted a commit before anything was persisted.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// PersistError means uploads succeeded but saving the record did not. The
// draft already holds the uploaded URLs, so a retry only saves.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("saving failed: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
