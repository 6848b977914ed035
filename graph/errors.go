package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rorkai/21st-sub000/processor/ast"
)

// ErrAmbiguousPending is matched by AmbiguousError.
var ErrAmbiguousPending = errors.New("ambiguous dependencies pending")

// AmbiguousError is returned when resolution is requested while some direct
// references still lack an owner. Nothing is fetched in that case.
type AmbiguousError struct {
	Pending []ast.UnknownDependency
}

func (e *AmbiguousError) Error() string {
	slugs := make([]string, len(e.Pending))
	for i, p := range e.Pending {
		if p.Category != "" {
			slugs[i] = p.Category + "/" + p.SlugWithOwnerMissing
		} else {
			slugs[i] = p.SlugWithOwnerMissing
		}
	}
	return fmt.Sprintf("%s: %s", ErrAmbiguousPending, strings.Join(slugs, ", "))
}

// Is reports whether target is ErrAmbiguousPending.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguousPending
}
