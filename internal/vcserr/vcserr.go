// Package vcserr implements the structured error taxonomy described in
// spec.md §7: each error carries a stable code plus the offending path
// so the one-line diagnostic required of callers is always available.
//
// The teacher never reaches for github.com/pkg/errors (see
// pkg/storage/types.go's plain errors.New sentinels and
// pkg/storage/wal.go's fmt.Errorf wrapping); vcserr follows the same
// approach rather than adding a third-party errors package.
package vcserr

import (
	"errors"
	"fmt"
)

// Code classifies an error into one of the taxonomy buckets from spec.md §7.
type Code string

const (
	// Validation
	CodeNotDirectory          Code = "not_directory"
	CodeNotFile               Code = "not_file"
	CodeNotSinglePathComponent Code = "not_single_path_component"
	CodeAlreadyExists         Code = "already_exists"
	CodeNotFound              Code = "not_found"

	// Invariant
	CodeNotMutable       Code = "not_mutable"
	CodeEntryNotFound    Code = "entry_not_found"
	CodeEntryMissingURL  Code = "entry_missing_url"
	CodeBadFilename      Code = "bad_filename"

	// WorkingCopy
	CodeObstructedUpdate  Code = "obstructed_update"
	CodeUnsupportedFeature Code = "unsupported_feature"
	CodeAlreadyLocked    Code = "already_locked"

	// IO / Logic
	CodeIO    Code = "io_error"
	CodeLogic Code = "logic_error"
)

// Error is the structured error value returned by every vcsfs package.
type Error struct {
	Code Code
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a structured error for the given code, path, and message.
func New(code Code, path string, msg string) *Error {
	return &Error{Code: code, Path: path, Err: errors.New(msg)}
}

// Wrap builds a structured error wrapping an underlying cause.
func Wrap(code Code, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Path: path, Err: err}
}

// Is reports whether err carries the given code, walking Unwrap chains.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
