// Package errs classifies the failures of the tools.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	// Config: malformed argument, missing or unsupported value, illegal combination.
	Config
	// Input: a source or its mask cannot be opened, read or decoded.
	Input
	// Shape: inputs disagree on format or dimensions, forbidden pack shape.
	Shape
	// Computation: projection failure.
	Computation
	// Output: destination cannot be created or written.
	Output
	// Resource: storage context cannot be acquired.
	Resource
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration error"
	case Input:
		return "input error"
	case Shape:
		return "shape error"
	case Computation:
		return "computation error"
	case Output:
		return "output error"
	case Resource:
		return "resource error"
	default:
		return "error"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(k Kind, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	if u := errors.Unwrap(err); u != nil {
		return &Error{Kind: k, Msg: err.Error(), Err: u}
	}
	return &Error{Kind: k, Msg: err.Error()}
}

func Configf(format string, args ...interface{}) error      { return newf(Config, format, args...) }
func Inputf(format string, args ...interface{}) error       { return newf(Input, format, args...) }
func Shapef(format string, args ...interface{}) error       { return newf(Shape, format, args...) }
func Computationf(format string, args ...interface{}) error { return newf(Computation, format, args...) }
func Outputf(format string, args ...interface{}) error      { return newf(Output, format, args...) }
func Resourcef(format string, args ...interface{}) error    { return newf(Resource, format, args...) }

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
