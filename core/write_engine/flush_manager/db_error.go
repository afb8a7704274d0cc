package flushmanager

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---

var (
	ErrTableFull        = errors.New("table full")
	ErrCapacity         = errors.New("address beyond table capacity")
	ErrIO               = errors.New("i/o error")
	ErrDBOpen           = errors.New("unable to open database file")
	ErrPageNotResident  = errors.New("page is not resident in the page cache")
	ErrCorruptTrailer   = errors.New("database file trailer is missing or corrupt")
	ErrChecksumMismatch = errors.New("data checksum mismatch, data corruption suspected")
	ErrCursorExhausted  = errors.New("cursor is already at end of table")
	ErrClosed           = errors.New("database file is closed")
)

// DbOpenError wraps any failure opening, stat-ing or validating the backing file.
type DbOpenError struct {
	Path string
	Err  error
}

func (e *DbOpenError) Error() string {
	return fmt.Sprintf("%v %s: %v", ErrDBOpen, e.Path, e.Err)
}

// Unwrap exposes both ErrDBOpen and the underlying cause to errors.Is.
func (e *DbOpenError) Unwrap() []error {
	return []error{ErrDBOpen, e.Err}
}
