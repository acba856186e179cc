package models

import "SafeCircle/pkg/errors"

var (
	ErrMissingFields   = errors.WithCode(400, "Missing fields")
	ErrSessionNotFound = errors.WithCode(404, "SOS not found")
	ErrNoLocation      = errors.WithCode(404, "Location not found")
)
