package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindMissingColumn     Kind = "missing_column"
	KindTypeViolation     Kind = "type_violation"
	KindReadFailure       Kind = "read_failure"
	KindRenderFailure     Kind = "render_failure"
	KindInvalidParameter  Kind = "invalid_parameter"
	KindConfiguration     Kind = "configuration"
	KindUnknown           Kind = "unknown"
)

// Error is the typed error returned by every pipeline component. It carries
// enough context (path, column, cause) to diagnose a failure from the message
// alone.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Path    string `json:"path,omitempty"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
		b.WriteString(":")
	}
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " (column=%s)", e.Column)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "file not found"}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat, Message: "unsupported file format"}
	ErrMissingColumn     = &Error{Kind: KindMissingColumn, Message: "required column missing"}
	ErrTypeViolation     = &Error{Kind: KindTypeViolation, Message: "column is not numeric"}
	ErrReadFailure       = &Error{Kind: KindReadFailure, Message: "failed to read file"}
	ErrRenderFailure     = &Error{Kind: KindRenderFailure, Message: "failed to render chart"}
	ErrInvalidParameter  = &Error{Kind: KindInvalidParameter, Message: "invalid parameter"}
	ErrConfiguration     = &Error{Kind: KindConfiguration, Message: "invalid configuration"}
)

// NotFound creates a not-found error for a source file
func NotFound(path string, cause error) *Error {
	return &Error{Kind: KindNotFound, Op: "load", Path: path, Message: "file not found", Cause: cause}
}

// UnsupportedFormat creates an error for an unrecognized file extension
func UnsupportedFormat(path, ext string) *Error {
	return &Error{
		Kind:    KindUnsupportedFormat,
		Op:      "load",
		Path:    path,
		Message: fmt.Sprintf("unsupported file format %q", ext),
	}
}

// MissingColumn creates an error for a required column absent from a table
func MissingColumn(op, path, column string) *Error {
	return &Error{
		Kind:    KindMissingColumn,
		Op:      op,
		Path:    path,
		Column:  column,
		Message: fmt.Sprintf("column %q not found", column),
	}
}

// TypeViolation creates an error for a column that cannot be coerced to numbers
func TypeViolation(op, column string, cause error) *Error {
	return &Error{
		Kind:    KindTypeViolation,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("column %q contains non-numeric values", column),
		Cause:   cause,
	}
}

// ReadFailure wraps a parser or I/O error raised while reading a source file
func ReadFailure(path string, cause error) *Error {
	return &Error{Kind: KindReadFailure, Op: "load", Path: path, Message: "failed to read file", Cause: cause}
}

// RenderFailure wraps an error raised while drawing or encoding a chart
func RenderFailure(path string, cause error) *Error {
	return &Error{Kind: KindRenderFailure, Op: "render", Path: path, Message: "failed to render chart", Cause: cause}
}

// InvalidParameter creates an error for a window or span outside its domain
func InvalidParameter(op, message string) *Error {
	return &Error{Kind: KindInvalidParameter, Op: op, Message: message}
}

// Configuration wraps a configuration loading or validation error
func Configuration(message string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Op: "config", Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode maps an error to the process exit status used by the CLI
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfiguration, KindInvalidParameter:
		return 2
	case KindNotFound:
		return 3
	case KindUnsupportedFormat:
		return 4
	case KindMissingColumn:
		return 5
	case KindTypeViolation:
		return 6
	case KindReadFailure:
		return 7
	case KindRenderFailure:
		return 8
	default:
		return 1
	}
}
