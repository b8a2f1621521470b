// Package status defines the numeric result codes reported by the agent.
//
// The platform expects a single integer status after every report or
// control result. Codes mirror the ThingPlug SDK return codes so that the
// value published as sysErrorCode means the same thing on every device.
//
// Errors that carry a code implement Coder; Of maps any error to a Code.
package status

import (
	"errors"
	"fmt"
)

// Code is a ThingPlug SDK result code. Zero is success, negatives are failures.
type Code int

// Result codes.
const (
	Success          Code = 0
	Failure          Code = -1
	Disconnected     Code = -3
	NullParameter    Code = -6
	BadQoS           Code = -9
	NotSupported     Code = -13
	InvalidParameter Code = -14
)

// String returns a short name for the code.
func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Disconnected:
		return "disconnected"
	case NullParameter:
		return "null_parameter"
	case BadQoS:
		return "bad_qos"
	case NotSupported:
		return "not_supported"
	case InvalidParameter:
		return "invalid_parameter"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Coder is implemented by errors that map to a specific result code.
type Coder interface {
	Code() Code
}

// Error is an error with an attached result code.
type Error struct {
	code Code
	msg  string
}

// New returns an error carrying code.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Code implements Coder.
func (e *Error) Code() Code { return e.code }

// Of returns the result code for err.
// nil maps to Success, coded errors to their own code, anything else to Failure.
func Of(err error) Code {
	if err == nil {
		return Success
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return Failure
}
