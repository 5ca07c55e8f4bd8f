package ranges

import "errors"

// Sentinel kinds for range registry errors.
var (
	ErrInvalidRange = errors.New("invalid range")
	ErrParse        = errors.New("parse range table failed")
)
