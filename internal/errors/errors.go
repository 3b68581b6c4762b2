// Package errors provides typed errors for pgindexhealth operations.
//
// This package defines sentinel errors and error types that allow callers
// to handle specific error conditions programmatically using errors.Is()
// and errors.As().
//
// Sentinel Errors:
//   - ErrInvalidConfig: configuration validation failed
//   - ErrNoPrimary: no primary host could be discovered in the cluster
//   - ErrQueryFailed: a diagnostic query could not be executed or read
//   - ErrInvalidTemplate: a SQL template is blank or unusable
//   - ErrConnectionFailed: a connection pool could not be created
//
// Typed Errors:
//   - ValidationError: wraps configuration/input validation errors
//   - TopologyError: no primary among the attempted hosts
//   - QueryError: wraps a failed (diagnostic, host) dispatch
//   - TemplateError: wraps SQL template loading and parsing errors
//   - ReportError: wraps report generation errors
//   - MultiError: aggregates multiple errors
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrInvalidConfig indicates configuration validation failed.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoPrimary indicates that none of the supplied hosts reported itself as primary.
	ErrNoPrimary = errors.New("primary host not found")

	// ErrQueryFailed indicates a diagnostic query failed on a host.
	ErrQueryFailed = errors.New("query execution failed")

	// ErrInvalidTemplate indicates a SQL template could not be loaded or parsed.
	ErrInvalidTemplate = errors.New("invalid sql template")

	// ErrConnectionFailed indicates the database connection could not be established.
	ErrConnectionFailed = errors.New("database connection failed")
)

// ValidationError represents a configuration or input validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was invalid (may be redacted for sensitive fields)
	Message string // Human-readable validation message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// Unwrap returns ErrInvalidConfig for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Is reports whether target matches this error type.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// TopologyError is returned when no primary could be found among Hosts.
// Probes holds the probe failures observed along the way, if any.
type TopologyError struct {
	Hosts  []string
	Probes []error
}

// NewTopologyError creates a new TopologyError.
func NewTopologyError(hosts []string, probes []error) *TopologyError {
	return &TopologyError{Hosts: hosts, Probes: probes}
}

// Error implements the error interface.
func (e *TopologyError) Error() string {
	msg := fmt.Sprintf("connection to primary host not found in [%s]", strings.Join(e.Hosts, ", "))
	if len(e.Probes) > 0 {
		msg += fmt.Sprintf(" (%d probe errors; first: %v)", len(e.Probes), e.Probes[0])
	}
	return msg
}

// Unwrap returns ErrNoPrimary for errors.Is support.
func (e *TopologyError) Unwrap() error {
	return ErrNoPrimary
}

// Is reports whether target matches this error type.
func (e *TopologyError) Is(target error) bool {
	_, ok := target.(*TopologyError)
	return ok
}

// QueryError represents a failed diagnostic dispatch on one host.
type QueryError struct {
	Diagnostic string // Diagnostic name
	Host       string // host:port the query ran against
	Query      string // SQL query (may be truncated for long queries)
	Err        error  // Underlying database error
}

// queryMaxLen is the maximum length of a query string in error messages.
const queryMaxLen = 100

// NewQueryError creates a new QueryError.
// Long queries are automatically truncated.
func NewQueryError(diagnostic, host, query string, err error) *QueryError {
	if len(query) > queryMaxLen {
		query = query[:queryMaxLen] + "..."
	}
	return &QueryError{Diagnostic: diagnostic, Host: host, Query: query, Err: err}
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("diagnostic %s failed on %s: %v", e.Diagnostic, e.Host, e.Err)
	}
	return fmt.Sprintf("diagnostic %s failed on %s [%s]: %v", e.Diagnostic, e.Host, e.Query, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type or ErrQueryFailed.
func (e *QueryError) Is(target error) bool {
	if target == ErrQueryFailed {
		return true
	}
	_, ok := target.(*QueryError)
	return ok
}

// TemplateError represents a SQL template that could not be loaded or parsed.
type TemplateError struct {
	Name string // Template (resource) name
	Err  error  // Underlying error
}

// NewTemplateError creates a new TemplateError.
func NewTemplateError(name string, err error) *TemplateError {
	return &TemplateError{Name: name, Err: err}
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("sql template %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type or ErrInvalidTemplate.
func (e *TemplateError) Is(target error) bool {
	if target == ErrInvalidTemplate {
		return true
	}
	_, ok := target.(*TemplateError)
	return ok
}

// ReportError represents an error during report generation.
type ReportError struct {
	Phase string // Phase that failed (e.g., "template", "render", "write")
	Path  string // Output path (if applicable)
	Err   error  // Underlying error
}

// NewReportError creates a new ReportError.
func NewReportError(phase, path string, err error) *ReportError {
	return &ReportError{Phase: phase, Path: path, Err: err}
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("report %s error: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("report %s error for %s: %v", e.Phase, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *ReportError) Is(target error) bool {
	_, ok := target.(*ReportError)
	return ok
}

// MultiError aggregates multiple errors into a single error.
// This is useful when multiple operations can fail independently.
type MultiError struct {
	Errors []error
}

// Add appends an error to the collection. Nil errors are ignored.
func (me *MultiError) Add(err error) {
	if err != nil {
		me.Errors = append(me.Errors, err)
	}
}

// Error implements the error interface.
func (me *MultiError) Error() string {
	switch len(me.Errors) {
	case 0:
		return "no errors"
	case 1:
		return me.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors occurred; first: %v", len(me.Errors), me.Errors[0])
	}
}

// Unwrap returns all collected errors for errors.Is/As support.
func (me *MultiError) Unwrap() []error {
	return me.Errors
}

// ErrorOrNil returns nil if no errors were added, otherwise returns the MultiError.
func (me *MultiError) ErrorOrNil() error {
	if len(me.Errors) == 0 {
		return nil
	}
	return me
}
