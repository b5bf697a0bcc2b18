// Package apperror defines the domain errors shared by the service and
// transport layers. Handlers map them to status codes with errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrUnknownTool  = errors.New("unknown tool")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // caller-facing message, returned verbatim in responses
	Field   string // optional: argument or field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// MissingArgument is the validation error for an absent required tool argument.
func MissingArgument(name string) *AppError {
	return ValidationFailed(name, "Missing required argument: "+name)
}

// InvalidArgument is the validation error for a tool argument of the wrong shape.
func InvalidArgument(name string) *AppError {
	return ValidationFailed(name, "Invalid argument: "+name)
}

// UnknownTool is returned when a tool invocation names nothing in the catalog.
func UnknownTool(name string) *AppError {
	return &AppError{
		Err:     ErrUnknownTool,
		Message: "Unknown tool: " + name,
		Field:   "name",
	}
}

// Unauthorized returns an AppError for missing or rejected credentials.
// HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
