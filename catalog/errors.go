package catalog

import "errors"

// Common catalog errors.
var (
	// ErrNotFound is returned when a catalog entry does not exist.
	ErrNotFound = errors.New("catalog entry not found")

	// ErrInvalidRef is returned for malformed owner/slug references.
	ErrInvalidRef = errors.New("invalid catalog reference")

	// ErrInvalidURL is returned when a canonical URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid canonical URL")
)
