package domain

import "errors"

// Error kinds shared by every layer. Wrap them with %w and match with errors.Is.
var (
	// ErrInvalidInput indicates a malformed or missing field, or an unsupported operation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the identifier has no matching record.
	ErrNotFound = errors.New("not found")

	// ErrIOFailure indicates an asset could not be written to storage.
	ErrIOFailure = errors.New("io failure")

	// ErrUpstreamFailure indicates the data store call failed.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrUnauthorized indicates the caller could not be authenticated.
	ErrUnauthorized = errors.New("unauthorized")
)
