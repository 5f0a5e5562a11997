// Package faults classifies failures into categories and severities, detects repeated
// failures of the same type, and persists and reports every handled fault.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags an error with the failure class it represents. Call sites set it explicitly
// with New; untagged errors classify as system errors.
type Kind string

// Fault kinds.
const (
	KindAPIClient       Kind = "APIClientError"
	KindInvalidArgument Kind = "InvalidArgumentError"
	KindConnection      Kind = "ConnectionError"
	KindTimeout         Kind = "TimeoutError"
	KindOutOfMemory     Kind = "OutOfMemoryError"
	KindMissingKey      Kind = "MissingKeyError"
	KindUnknown         Kind = "UnknownError"
)

// Fault is an error tagged with a Kind.
type Fault struct {
	Kind Kind
	Err  error
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kind, Err: err}
}

// Newf tags a formatted error with kind.
func Newf(kind Kind, format string, args ...any) error {
	return &Fault{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (f *Fault) Error() string {
	return f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// KindOf returns the outermost Kind tag in err's chain, or "" when untagged.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// TypeName names the fault type used for pattern tracking: the Kind for tagged errors and
// the dynamic Go type of the innermost error otherwise.
func TypeName(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", root), "*")
}
