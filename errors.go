package tabula

import (
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeSchemaSync ErrorType = "schema_sync"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes surfaced to callers
const (
	ErrCodeInvalidName         = "INVALID_NAME"
	ErrCodeReservedName        = "RESERVED_NAME"
	ErrCodeNameTooLong         = "NAME_TOO_LONG"
	ErrCodeDuplicateName       = "DUPLICATE_NAME"
	ErrCodeUnknownFieldType    = "UNKNOWN_FIELD_TYPE"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeTemplateNotFound    = "TEMPLATE_NOT_FOUND"
	ErrCodeFieldNotFound       = "FIELD_NOT_FOUND"
	ErrCodeRecordNotFound      = "RECORD_NOT_FOUND"
	ErrCodeColumnSyncFailed    = "COLUMN_SYNC_FAILED"
	ErrCodeTableSyncFailed     = "TABLE_SYNC_FAILED"
	ErrCodeReferenceNotFound   = "REFERENCE_NOT_FOUND"
	ErrCodeReferenceRestricted = "REFERENCE_RESTRICTED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// TabulaError is the unified structured error for the schema engine.
type TabulaError struct {
	Type     ErrorType      `json:"type"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Field    string         `json:"field,omitempty"`
	Template string         `json:"template,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Cause    error          `json:"-"`
}

func (e *TabulaError) Error() string {
	switch {
	case e.Template != "" && e.Field != "":
		return fmt.Sprintf("[%s:%s] template %s field '%s': %s", e.Type, e.Code, e.Template, e.Field, e.Message)
	case e.Template != "":
		return fmt.Sprintf("[%s:%s] template %s: %s", e.Type, e.Code, e.Template, e.Message)
	case e.Field != "":
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	default:
		return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	}
}

func (e *TabulaError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail entry.
func (e *TabulaError) WithDetail(key string, value any) *TabulaError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *TabulaError) WithCause(cause error) *TabulaError {
	e.Cause = cause
	return e
}

// WithField attaches field context.
func (e *TabulaError) WithField(field string) *TabulaError {
	e.Field = field
	return e
}

// WithTemplate attaches template context.
func (e *TabulaError) WithTemplate(name string) *TabulaError {
	e.Template = name
	return e
}

// NewTabulaError creates a new TabulaError.
func NewTabulaError(errorType ErrorType, code, message string) *TabulaError {
	return &TabulaError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewValidationError creates a validation error bound to a field or name.
func NewValidationError(field, message string) *TabulaError {
	return &TabulaError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewTemplateNotFoundError creates a not-found error for a template.
func NewTemplateNotFoundError(name string) *TabulaError {
	return &TabulaError{
		Type:     ErrorTypeNotFound,
		Code:     ErrCodeTemplateNotFound,
		Message:  "template not found",
		Template: name,
		Details:  make(map[string]any),
	}
}

// NewFieldNotFoundError creates a not-found error for a field.
func NewFieldNotFoundError(field string) *TabulaError {
	return &TabulaError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeFieldNotFound,
		Message: "field not found",
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewSchemaSyncError creates an error for a failed column operation.
func NewSchemaSyncError(column string, op SyncOp, cause error) *TabulaError {
	return &TabulaError{
		Type:    ErrorTypeSchemaSync,
		Code:    ErrCodeColumnSyncFailed,
		Message: fmt.Sprintf("column operation %s failed", op),
		Field:   column,
		Cause:   cause,
		Details: map[string]any{"op": string(op)},
	}
}

// NewReferenceError creates a reference-resolution error.
func NewReferenceError(field, message string) *TabulaError {
	return &TabulaError{
		Type:    ErrorTypeReference,
		Code:    ErrCodeReferenceNotFound,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *TabulaError {
	return &TabulaError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// ============================================================================
// ValidationErrors
// ============================================================================

// ValidationErrors collects field-level validation failures so a caller sees
// every problem at once instead of the first.
type ValidationErrors struct {
	Errors []*TabulaError `json:"errors"`
}

// NewValidationErrors creates an empty collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]*TabulaError, 0)}
}

// Error implements the error interface.
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	if len(ve.Errors) == 1 {
		return ve.Errors[0].Error()
	}
	return fmt.Sprintf("multiple validation errors: %d errors found", len(ve.Errors))
}

// Add appends an error to the collection.
func (ve *ValidationErrors) Add(err *TabulaError) {
	ve.Errors = append(ve.Errors, err)
}

// Addf appends a validation error built from a format string.
func (ve *ValidationErrors) Addf(field, format string, args ...any) {
	ve.Add(NewValidationError(field, fmt.Sprintf(format, args...)))
}

// HasErrors reports whether any errors were collected.
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToError returns the collection as an error, or nil when empty.
func (ve *ValidationErrors) ToError() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ============================================================================
// Error checking utilities
// ============================================================================

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	if te, ok := err.(*TabulaError); ok {
		return te.Type == ErrorTypeValidation
	}
	if _, ok := err.(*ValidationErrors); ok {
		return true
	}
	return false
}

// IsNotFoundError checks if an error is a not-found error.
func IsNotFoundError(err error) bool {
	if te, ok := err.(*TabulaError); ok {
		return te.Type == ErrorTypeNotFound
	}
	return false
}

// IsSchemaSyncError checks if an error is a schema-sync error.
func IsSchemaSyncError(err error) bool {
	if te, ok := err.(*TabulaError); ok {
		return te.Type == ErrorTypeSchemaSync
	}
	return false
}

// IsReferenceError checks if an error is a reference error.
func IsReferenceError(err error) bool {
	if te, ok := err.(*TabulaError); ok {
		return te.Type == ErrorTypeReference
	}
	return false
}
