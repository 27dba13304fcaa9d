package repository

import "errors"

var (
	// ErrNotFound is returned when a requested key doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed store
	ErrClosed = errors.New("store is closed")
)
