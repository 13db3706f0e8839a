package store

import "errors"

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict indicates a rejected illegal status transition or a uniqueness
// violation the caller must handle.
var ErrConflict = errors.New("store: conflict")
