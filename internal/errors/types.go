package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeMissingPartial ErrorType = "missing_partial"
	ErrorTypeIO             ErrorType = "io"
	ErrorTypeBuild          ErrorType = "build"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeValidation     ErrorType = "validation"
)

// Common error codes.
const (
	CodePartialNotFound   = "PARTIAL_NOT_FOUND"
	CodePartialOutsideDir = "PARTIAL_OUTSIDE_DIR"
	CodeReadFailed        = "READ_FAILED"
	CodeWriteFailed       = "WRITE_FAILED"
	CodeCopyFailed        = "COPY_FAILED"
	CodeMkdirFailed       = "MKDIR_FAILED"
	CodeStylesFailed      = "STYLES_FAILED"
	CodeCommandRejected   = "COMMAND_REJECTED"
	CodeManifestInvalid   = "MANIFEST_INVALID"
	CodeDependencyMissing = "DEPENDENCY_MISSING"
)

// SiteError is a structured error carrying the file and partial reference
// that produced it.
type SiteError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	FilePath  string
	Reference string
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	if e.Reference != "" {
		parts = append(parts, fmt.Sprintf("include %q:", e.Reference))
	}

	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is matches another SiteError with the same type and code.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SiteError) WithContext(key string, value interface{}) *SiteError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile records the source file the error relates to.
func (e *SiteError) WithFile(path string) *SiteError {
	e.FilePath = path

	return e
}

// Fields returns key/value pairs suitable for a structured logger.
func (e *SiteError) Fields() []interface{} {
	fields := []interface{}{"error_type", string(e.Type)}
	if e.Code != "" {
		fields = append(fields, "code", e.Code)
	}
	if e.FilePath != "" {
		fields = append(fields, "file", e.FilePath)
	}
	if e.Reference != "" {
		fields = append(fields, "reference", e.Reference)
	}
	for k, v := range e.Context {
		fields = append(fields, k, v)
	}

	return fields
}

// NewMissingPartialError reports an include reference whose fragment
// cannot be read. Malformed references are reported the same way.
func NewMissingPartialError(reference, partialPath string, cause error) *SiteError {
	code := CodePartialNotFound
	if errors.Is(cause, ErrOutsidePartials) {
		code = CodePartialOutsideDir
	}

	return &SiteError{
		Type:      ErrorTypeMissingPartial,
		Code:      code,
		Message:   "failed to include partial",
		Cause:     cause,
		Reference: reference,
		Context:   map[string]interface{}{"partial_path": partialPath},
	}
}

// NewIOError creates an I/O error for path.
func NewIOError(code, path string, cause error) *SiteError {
	return &SiteError{
		Type:     ErrorTypeIO,
		Code:     code,
		Message:  ioMessage(code),
		Cause:    cause,
		FilePath: path,
	}
}

func ioMessage(code string) string {
	switch code {
	case CodeReadFailed:
		return "read failed"
	case CodeWriteFailed:
		return "write failed"
	case CodeCopyFailed:
		return "copy failed"
	case CodeMkdirFailed:
		return "mkdir failed"
	default:
		return "i/o failure"
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// ErrOutsidePartials marks a reference that escapes the partials directory.
var ErrOutsidePartials = errors.New("reference escapes partials directory")

// IsMissingPartial checks if an error is a missing partial.
func IsMissingPartial(err error) bool {
	return hasType(err, ErrorTypeMissingPartial)
}

// IsIOError checks if an error is an I/O failure.
func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return hasType(err, ErrorTypeBuild)
}

func hasType(err error, t ErrorType) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// Logger is the logging surface needed by Report.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
}

// Report logs err with its structured fields when it is a SiteError.
func Report(ctx context.Context, logger Logger, err error, msg string, fields ...interface{}) {
	if err == nil || logger == nil {
		return
	}

	var se *SiteError
	if errors.As(err, &se) {
		fields = append(fields, se.Fields()...)
	}
	logger.Error(ctx, err, msg, fields...)
}
