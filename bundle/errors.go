package bundle

import "errors"

var (
	// ErrNoDemoEntry is returned when the demo exports no capitalized
	// function to render.
	ErrNoDemoEntry = errors.New("demo has no entry component")

	// ErrMissingSlug is returned when the component identity has no slug.
	ErrMissingSlug = errors.New("component slug required")
)
