package tool

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a protocol-level fault. Values match JSON-RPC 2.0 error codes.
type Code int

const (
	CodeParseError     Code = -32700
	CodeInvalidRequest Code = -32600
	CodeMethodNotFound Code = -32601
	CodeInvalidParams  Code = -32602
	CodeInternalError  Code = -32603
)

func (c Code) String() string {
	switch c {
	case CodeParseError:
		return "ParseError"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeMethodNotFound:
		return "MethodNotFound"
	case CodeInvalidParams:
		return "InvalidParams"
	case CodeInternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is a classified fault. It is created where the fault is detected and
// propagated unchanged to the caller.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Errorf creates a classified error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// MethodNotFound reports a call to a tool that is not registered.
func MethodNotFound(name string) *Error {
	return &Error{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("tool %s not found", name),
	}
}

// Internal classifies an execution failure of the named tool.
func Internal(toolName string, cause error) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    CodeInternalError,
		Message: fmt.Sprintf("%s: %s", toolName, msg),
		Cause:   cause,
	}
}

// Violation is a single argument validation failure.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Reason
	}
	return v.Path + ": " + v.Reason
}

// InvalidParams reports every violation in a single classified error.
func InvalidParams(violations ...Violation) *Error {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return &Error{
		Code:    CodeInvalidParams,
		Message: "invalid parameters: " + strings.Join(parts, ", "),
		Data:    violations,
	}
}

// AsError returns the classified error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var classified *Error
	if errors.As(err, &classified) && classified != nil {
		return classified, true
	}
	return nil, false
}

// CodeOf returns the classification of err, defaulting to CodeInternalError.
func CodeOf(err error) Code {
	if classified, ok := AsError(err); ok {
		return classified.Code
	}
	return CodeInternalError
}
