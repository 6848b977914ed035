package analyzer

import "errors"

var (
	// ErrUnknownDependency is returned when promoting a dependency the
	// report does not list as ambiguous.
	ErrUnknownDependency = errors.New("dependency is not pending")

	// ErrOwnerRequired is returned when a promotion target has no owner.
	ErrOwnerRequired = errors.New("owner required")
)
