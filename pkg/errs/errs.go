// Package errs wraps errors with the operation that produced them and a
// Kind that callers can branch on without string matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Op is the name of the operation that failed, usually Type.Method.
type Op string

// Parameter names the input that caused the error.
type Parameter string

type Kind uint8

const (
	Other Kind = iota
	Invalid
	InvalidRequest
	IO
	Exist
	NotExist
	Internal
	Validation
	Unauthenticated
	Unauthorized
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid operation"
	case InvalidRequest:
		return "invalid request"
	case IO:
		return "I/O error"
	case Exist:
		return "item already exists"
	case NotExist:
		return "item does not exist"
	case Internal:
		return "internal error"
	case Validation:
		return "input validation error"
	case Unauthenticated:
		return "unauthenticated request"
	case Unauthorized:
		return "unauthorized request"
	case Unsupported:
		return "unsupported operation"
	}

	return "unknown error kind"
}

type Error struct {
	Op    Op
	Kind  Kind
	Param Parameter
	Err   error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		b.WriteString(string(e.Op))
	}

	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Param != "" {
		pad(b, ": ")
		b.WriteString("parameter ")
		b.WriteString(string(e.Param))
	}

	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}

	if b.Len() == 0 {
		return "no error"
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}

	b.WriteString(str)
}

// E builds an error from its arguments. Each argument is placed in the
// field matching its type; a string becomes the wrapped error. If no Kind
// is given the Kind of a wrapped *Error is inherited.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}

	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case Parameter:
			e.Param = a
		case string:
			e.Err = Str(a)
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case nil:
		default:
			return fmt.Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	var inner *Error
	if e.Kind == Other && errors.As(e.Err, &inner) {
		e.Kind = inner.Kind
	}

	return e
}

// Str returns an error that formats as the given text.
func Str(text string) error {
	return errors.New(text)
}

// KindIs reports whether any *Error in the chain of err has the given Kind.
func KindIs(kind Kind, err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}

		if e.Kind == kind {
			return true
		}

		err = e.Err
	}

	return false
}

// OpStack returns the operations in the chain of err, outermost first.
func OpStack(err error) []string {
	var ops []string

	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}

		if e.Op != "" {
			ops = append(ops, string(e.Op))
		}

		err = e.Err
	}

	return ops
}
