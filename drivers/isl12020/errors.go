package isl12020

import "errors"

var (
	// Sentinel errors (TinyGo-safe; no fmt)
	ErrModeRange       = errors.New("isl12020: frequency output mode out of range")
	ErrCompensationOff = errors.New("isl12020: temperature sensing not enabled")
	ErrNotConfigured   = errors.New("isl12020: device not configured")
)
