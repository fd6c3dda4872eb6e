package icebergerr

import (
	"errors"
	"fmt"
)

// ErrPrecondition marks a writer construction that was requested with a
// configuration the factory cannot honour (missing equality ids or delete schema).
// It is never transient.
var ErrPrecondition = errors.New("precondition failed")

// ErrLoaderNotOpen is returned when a table is requested from a loader that has
// not been opened (or was transferred and not re-opened).
var ErrLoaderNotOpen = errors.New("table loader: not open")

// ConfigurationError indicates an unresolvable table or column name, or a missing
// required schema or setting.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += " for " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UnsupportedTypeError indicates a type that has no mapping between the engine
// and the table format.
type UnsupportedTypeError struct {
	Type      string
	Direction string // "to_logical", "to_physical", or an encoding name
}

func (e *UnsupportedTypeError) Error() string {
	if e.Direction == "" {
		return fmt.Sprintf("unsupported type %s", e.Type)
	}
	return fmt.Sprintf("unsupported type %s (%s)", e.Type, e.Direction)
}

// UnsupportedFormatError indicates a file format that has no encoding.
type UnsupportedFormatError struct {
	Format    string
	Operation string // "data", "equality-deletes", "position-deletes"
}

func (e *UnsupportedFormatError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("cannot write unknown file format: %s", e.Format)
	}
	return fmt.Sprintf("cannot write %s for unsupported file format: %s", e.Operation, e.Format)
}

// TableNotFoundError indicates the resolved identifier does not exist in the catalog.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %s does not exist", e.Table)
}

// WriteIOError wraps a storage failure while creating or writing a file.
type WriteIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteIOError) Unwrap() error {
	return e.Err
}

// CommitConflictError indicates that the table metadata changed between the
// read and the commit attempt.
type CommitConflictError struct {
	Table string
	Err   error
}

func (e *CommitConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commit conflict on %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("commit conflict on %s", e.Table)
}

func (e *CommitConflictError) Unwrap() error {
	return e.Err
}

// PreconditionError describes which precondition failed. It matches ErrPrecondition
// with errors.Is.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Message
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}
