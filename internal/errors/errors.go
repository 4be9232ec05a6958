// Package errors implements the seven-kind script_error taxonomy of
// §7, keeping the teacher's struct shape (type tag + message + source
// location + call stack) and reusing github.com/pkg/errors for
// wrap/cause chains so a script_error can carry an underlying Go error
// (a failed native call, a GC invariant violation) without losing it.
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"kenaf/internal/object"
)

// Kind is one of the seven script_error kinds (§7).
type Kind string

const (
	ArgumentError Kind = "argument_error"
	TypeError     Kind = "type_error"
	IndexError    Kind = "index_error"
	KeyError      Kind = "key_error"
	ValueError    Kind = "value_error"
	CothreadError Kind = "cothread_error"
	// RuntimeError is the catch-all kind for failures that don't fit
	// one of the other six (e.g. a native call wrapping a plain Go
	// error). Its wire string stays "script_error" for compatibility
	// with §7's error-kind taxonomy.
	RuntimeError Kind = "script_error"
)

// SourceLocation is a (file, line, column) triple resolved from a
// Script's newline table (object.Script.Locate).
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// StackFrame is one frame of the cothread call stack active when the
// error was raised (§4.10 unwind).
type StackFrame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// ScriptError is a raised Kenaf error: a kind, message, the source
// location the THROW op (or a failed implicit operation) occurred at,
// and the cothread's call stack at that point.
type ScriptError struct {
	Kind      Kind
	Message   string
	Location  SourceLocation
	CallStack []StackFrame
	cause     error

	// Thrown is the raw script value a THROW op raised, when this error
	// originated there rather than from an implicit runtime check.
	// HasThrown distinguishes "threw null" from "no script value".
	Thrown    object.Value
	HasThrown bool
}

func (e *ScriptError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s\n", e.Kind, e.Message))
	if e.Location.File != "" {
		sb.WriteString(fmt.Sprintf("  at %s:%d:%d\n", e.Location.File, e.Location.Line, e.Location.Column))
	}
	for _, frame := range e.CallStack {
		if frame.Function != "" {
			sb.WriteString(fmt.Sprintf("  at %s (%s:%d:%d)\n", frame.Function, frame.File, frame.Line, frame.Column))
		} else {
			sb.WriteString(fmt.Sprintf("  at %s:%d:%d\n", frame.File, frame.Line, frame.Column))
		}
	}
	return sb.String()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *ScriptError) Unwrap() error { return e.cause }

// Cause returns the root cause via pkg/errors' chain walk, so a
// ScriptError wrapping a native-call failure still surfaces the
// original Go error to anything inspecting it with pkgerrors.Cause.
func (e *ScriptError) Cause() error {
	if e.cause == nil {
		return e
	}
	return pkgerrors.Cause(e.cause)
}

func New(kind Kind, format string, args ...any) *ScriptError {
	return &ScriptError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new ScriptError of kind via pkg/errors, so
// the combined chain supports Cause()/errors.Is against both layers.
func Wrap(cause error, kind Kind, format string, args ...any) *ScriptError {
	return &ScriptError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: pkgerrors.WithStack(cause)}
}

// Throw builds the ScriptError a THROW op raises for an arbitrary
// script value (§7: script code can throw any value, not just a
// message string).
func Throw(v object.Value, message string) *ScriptError {
	return &ScriptError{Kind: RuntimeError, Message: message, Thrown: v, HasThrown: true}
}

func (e *ScriptError) At(file string, line, column int) *ScriptError {
	e.Location = SourceLocation{File: file, Line: line, Column: column}
	return e
}

func (e *ScriptError) WithStack(stack []StackFrame) *ScriptError {
	e.CallStack = stack
	return e
}

func (e *ScriptError) PushFrame(function, file string, line, column int) *ScriptError {
	e.CallStack = append(e.CallStack, StackFrame{Function: function, File: file, Line: line, Column: column})
	return e
}
