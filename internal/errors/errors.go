package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different categories of errors for better handling
type ErrorCategory string

const (
	ErrorCategoryExecution     ErrorCategory = "execution"
	ErrorCategoryProvision     ErrorCategory = "provision"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryNotFound      ErrorCategory = "not_found"
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryRegistry      ErrorCategory = "registry"
	ErrorCategoryHook          ErrorCategory = "hook"
	ErrorCategoryFilesystem    ErrorCategory = "filesystem"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// BuildError represents a categorized error raised while loading the
// description or building images.
type BuildError struct {
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Cause      error         `json:"-"`
	Operation  string        `json:"operation,omitempty"`
	Resource   string        `json:"resource,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *BuildError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		fmt.Fprintf(&b, "%s: ", e.Operation)
	}
	b.WriteString(e.Message)
	if e.Resource != "" {
		fmt.Fprintf(&b, ": %s", e.Resource)
	}
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is matches another *BuildError by category, so that the Err* sentinels
// below work with errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Category == e.Category
}

// GetUserFriendlyMessage returns a user-friendly error message with suggestions
func (e *BuildError) GetUserFriendlyMessage() string {
	msg := e.Error()
	if e.Suggestion != "" {
		msg += "\n\nSuggestion: " + e.Suggestion
	}
	return msg
}

// Sentinels for errors.Is checks against a category.
var (
	ErrValidation    = &BuildError{Category: ErrorCategoryValidation}
	ErrNotFound      = &BuildError{Category: ErrorCategoryNotFound}
	ErrConfiguration = &BuildError{Category: ErrorCategoryConfiguration}
	ErrProvision     = &BuildError{Category: ErrorCategoryProvision}
	ErrHook          = &BuildError{Category: ErrorCategoryHook}
	ErrRegistry      = &BuildError{Category: ErrorCategoryRegistry}
)

// ErrorBuilder helps construct BuildError instances with proper categorization
type ErrorBuilder struct {
	category   ErrorCategory
	message    string
	cause      error
	operation  string
	resource   string
	suggestion string
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder() *ErrorBuilder {
	return &ErrorBuilder{}
}

// Category sets the error category
func (b *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

// Message sets the error message
func (b *ErrorBuilder) Message(message string) *ErrorBuilder {
	b.message = message
	return b
}

// Messagef sets the error message with formatting
func (b *ErrorBuilder) Messagef(format string, args ...interface{}) *ErrorBuilder {
	b.message = fmt.Sprintf(format, args...)
	return b
}

// Cause sets the underlying error
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// Operation sets the operation context
func (b *ErrorBuilder) Operation(operation string) *ErrorBuilder {
	b.operation = operation
	return b
}

// Resource names the file, image or registry the error is about
func (b *ErrorBuilder) Resource(resource string) *ErrorBuilder {
	b.resource = resource
	return b
}

// Suggestion sets a user-friendly suggestion
func (b *ErrorBuilder) Suggestion(suggestion string) *ErrorBuilder {
	b.suggestion = suggestion
	return b
}

// Build creates the BuildError instance
func (b *ErrorBuilder) Build() *BuildError {
	if b.category == "" {
		b.category = categorizeError(b.message, b.cause)
	}
	if b.message == "" && b.cause != nil {
		b.message = b.cause.Error()
	}

	return &BuildError{
		Category:   b.category,
		Message:    b.message,
		Cause:      b.cause,
		Operation:  b.operation,
		Resource:   b.resource,
		Suggestion: b.suggestion,
	}
}

// categorizeError guesses a category from the message and the cause.
func categorizeError(message string, cause error) ErrorCategory {
	var be *BuildError
	if stderrors.As(cause, &be) {
		return be.Category
	}

	msgLower := strings.ToLower(message)
	switch {
	case strings.Contains(msgLower, "no such file") || strings.Contains(msgLower, "not found"):
		return ErrorCategoryNotFound
	case strings.Contains(msgLower, "invalid"):
		return ErrorCategoryValidation
	case strings.Contains(msgLower, "registry") || strings.Contains(msgLower, "push"):
		return ErrorCategoryRegistry
	case strings.Contains(msgLower, "permission") || strings.Contains(msgLower, "directory"):
		return ErrorCategoryFilesystem
	default:
		return ErrorCategoryUnknown
	}
}

// NewValidationError creates a validation-related error
func NewValidationError(operation, message string) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryValidation).
		Operation(operation).
		Message(message).
		Suggestion("Check the image declaration in the build description").
		Build()
}

// NewNotFoundError creates an error for a missing file or archive
func NewNotFoundError(operation, path string) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryNotFound).
		Operation(operation).
		Message("no such file").
		Resource(path).
		Suggestion("Check file paths relative to the build description").
		Build()
}

// NewConfigurationError creates an error for a malformed build description
func NewConfigurationError(file, message string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryConfiguration).
		Operation("load description").
		Resource(file).
		Message(message).
		Cause(cause).
		Build()
}

// NewRegistryError creates a registry-related error
func NewRegistryError(operation, message string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryRegistry).
		Operation(operation).
		Message(message).
		Cause(cause).
		Suggestion("Check registry connectivity and credentials").
		Build()
}

// NewHookError creates an error for a failing pre or post hook
func NewHookError(hook string, status int, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryHook).
		Operation(hook + " action").
		Messagef("failed (exitcode: %d)", status).
		Cause(cause).
		Build()
}

// NewFilesystemError creates a filesystem-related error
func NewFilesystemError(operation, message string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryFilesystem).
		Operation(operation).
		Message(message).
		Cause(cause).
		Suggestion("Check file paths and permissions").
		Build()
}

// ErrorCollector collects errors that must not stop a sequence of operations,
// such as the cleanup of several images.
type ErrorCollector struct {
	errors []error
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add records err if it is non-nil
func (c *ErrorCollector) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// HasErrors returns true if there are any errors
func (c *ErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all collected errors
func (c *ErrorCollector) Errors() []error {
	return c.errors
}

// ToError converts the collector to a single error if there are errors
func (c *ErrorCollector) ToError() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return stderrors.Join(c.errors...)
	}
}
