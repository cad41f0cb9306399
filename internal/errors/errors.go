package apperrors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	TypeTool       ErrorType = "Tool"       // Missing native tool (e.g. pg_dump) or non-zero exit
	TypeConnection ErrorType = "Connection" // Server unreachable, auth rejected
	TypeArchive    ErrorType = "Archive"    // Archive could not be written
	TypeIntegrity  ErrorType = "Integrity"  // Corrupt or truncated archive, empty copy stream
	TypeConfig     ErrorType = "Config"     // Invalid flags, missing required params, bad names
	TypeResource   ErrorType = "Resource"   // Permission denied, out of space, file not found
	TypeInternal   ErrorType = "Internal"   // Unexpected internal failure
)

// AppError is a rich error type that provides categorize and hints for users.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Hint    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Hint:    hint,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
		Hint:    hint,
	}
}

// IsType reports whether err or any error in its chain is an AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// Hint returns the user hint of the first AppError in the chain, if any.
func Hint(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Hint
	}
	return ""
}

var (
	ErrMissingDump = New(TypeIntegrity, "archive has no dump entry", "The archive was not produced by this tool or was truncated during upload. Re-run the backup.")
)
