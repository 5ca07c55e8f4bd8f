package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidLimit = errors.New("invalid limit or offset")
	ErrInvalidClaim = errors.New("invalid claim")
	ErrClosed       = errors.New("store closed")
)
