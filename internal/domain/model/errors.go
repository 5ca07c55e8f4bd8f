package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrUnknownClaimType = errors.New("unknown claim type")
	ErrUnknownStatus    = errors.New("unknown claim status")
	ErrAmbiguousValue   = errors.New("more than one of value, category, probability is set")
)
