// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"errors"

	"github.com/lucore-lang/lucore/internal/luacode"
)

// Status is a protected call's outcome, mirroring the integer status code
// lua_pcall returns in the C API.
type Status int

const (
	// StatusOK indicates the protected call completed without error.
	StatusOK Status = iota
	// ErrorRuntime indicates a runtime error: a type error, arithmetic or
	// comparison on incompatible values, division or modulo by zero, a
	// stack overflow, or a malformed coercion raised while executing.
	ErrorRuntime
	// ErrorSyntax indicates the chunk given to [State.Load] failed to
	// lex or parse.
	ErrorSyntax
	// ErrorHandler indicates the message handler itself raised an error
	// while handling an earlier one.
	ErrorHandler
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case ErrorRuntime:
		return "runtime error"
	case ErrorSyntax:
		return "syntax error"
	case ErrorHandler:
		return "error in error handling"
	default:
		return "unknown lua status"
	}
}

// StatusOf classifies err the way a host embedding [State] distinguishes
// the three error kinds a protected call can fail with: a chunk that never
// compiled ([ErrorSyntax]), a fault raised while running a message handler
// ([ErrorHandler]), or any other failure raised while executing
// ([ErrorRuntime]). StatusOf(nil) returns [StatusOK].
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var syntaxErr *luacode.SyntaxError
	if errors.As(err, &syntaxErr) {
		return ErrorSyntax
	}
	var handlerErr *ErrorHandlerError
	if errors.As(err, &handlerErr) {
		return ErrorHandler
	}
	return ErrorRuntime
}

// ErrorHandlerError wraps a failure that occurred while a protected call's
// message handler was itself running, as opposed to the original error the
// handler was invoked to process.
type ErrorHandlerError struct {
	err error
}

func (e *ErrorHandlerError) Error() string {
	return "error in error handling: " + e.err.Error()
}

func (e *ErrorHandlerError) Unwrap() error {
	return e.err
}

// errorToValue converts a Go error to a Lua [value].
// If there is an [errorObject] in the error chain,
// then errorToValue returns its value.
// errorToValue(nil) returns nil.
func errorToValue(err error) value {
	if err == nil {
		return nil
	}
	if obj := (errorObject{}); errors.As(err, &obj) {
		return obj.value
	}
	// TODO(maybe): Use a userdata instead (so errors can be round-tripped)?
	return stringValue{s: err.Error()}
}

// errorObject wraps a [value] as an [error].
type errorObject struct {
	value value
}

func (obj errorObject) Error() string {
	if obj.value == nil {
		return "<lua nil>"
	}
	s, ok := toString(obj.value)
	if !ok {
		return "<" + obj.value.valueType().String() + ">"
	}
	return s.s
}
