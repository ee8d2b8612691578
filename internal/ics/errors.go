package ics

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is returned when a payload does not open with
// BEGIN:VCALENDAR. Nothing is extracted from such a payload.
var ErrInvalidFormat = errors.New("ics: payload does not start with BEGIN:VCALENDAR")

// ParseError reports a structurally malformed calendar. The whole import
// is rejected; no event of the payload is returned.
type ParseError struct {
	// Line is the 1-based line in the payload, or 0 when unknown.
	Line      int
	Component string
	Reason    string
	Err       error
}

func (e *ParseError) Error() string {
	msg := "ics: "
	if e.Line > 0 {
		msg += fmt.Sprintf("line %d: ", e.Line)
	}
	if e.Component != "" {
		msg += e.Component + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError wraps a failure to obtain the raw payload (file, request body,
// subscription URL). Reads are not retried.
type IOError struct {
	Source string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ics: read %s: %v", e.Source, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
