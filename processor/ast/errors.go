package ast

import (
	"errors"
	"fmt"
)

// ErrParseFailure is returned when source text is too malformed even for
// error-recovering parsing.
var ErrParseFailure = errors.New("parse failure")

// ParseError describes why a source could not be parsed at all.
type ParseError struct {
	// Reason is a short human-readable cause.
	Reason string
	// Offset is the byte offset of the offending input, or -1.
	Offset int
	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	msg := "parse failure: " + e.Reason
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at byte %d", msg, e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes every ParseError match ErrParseFailure.
func (e *ParseError) Is(target error) bool {
	return target == ErrParseFailure
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
