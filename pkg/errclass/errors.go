package errclass

import (
	"errors"
	"fmt"
)

// HelperError is a stable, machine-readable error class.
type HelperError struct {
	Code    string
	Message string
	Exit    int
}

func (e *HelperError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *HelperError) Is(target error) bool {
	t, ok := target.(*HelperError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new HelperError with the same Code but a specific message.
func (e *HelperError) WithMessage(msg string) *HelperError {
	return &HelperError{Code: e.Code, Message: msg, Exit: e.Exit}
}

// WithMessagef returns a new HelperError with a formatted message.
func (e *HelperError) WithMessagef(format string, args ...any) *HelperError {
	return &HelperError{Code: e.Code, Message: fmt.Sprintf(format, args...), Exit: e.Exit}
}

// ExitCode returns the process exit status for err: 0 for nil, the class
// exit status for a HelperError anywhere in the chain, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var he *HelperError
	if errors.As(err, &he) && he.Exit != 0 {
		return he.Exit
	}
	return 1
}

// Code returns the class code of err, or "" if err carries none.
func Code(err error) string {
	var he *HelperError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// Error classes. Exit status 2 marks a request the helper refused to run;
// 1 marks an operation that ran and failed.
var (
	ErrInvalidRequest = &HelperError{Code: "E_INVALID_REQUEST", Exit: 2}
	ErrPrivilege      = &HelperError{Code: "E_PRIVILEGE", Exit: 2}
	ErrUnknownFeature = &HelperError{Code: "E_UNKNOWN_FEATURE", Exit: 2}
	ErrRefInvalid     = &HelperError{Code: "E_REF_INVALID", Exit: 2}
	ErrNameInvalid    = &HelperError{Code: "E_NAME_INVALID", Exit: 2}
	ErrPathEscape     = &HelperError{Code: "E_PATH_ESCAPE", Exit: 2}
	ErrUnknownUpdate  = &HelperError{Code: "E_UNKNOWN_UPDATE", Exit: 1}
	ErrState          = &HelperError{Code: "E_STATE", Exit: 1}
	ErrTransport      = &HelperError{Code: "E_TRANSPORT", Exit: 1}
	ErrArchiveInvalid = &HelperError{Code: "E_ARCHIVE_INVALID", Exit: 1}
	ErrIntegrity      = &HelperError{Code: "E_INTEGRITY", Exit: 1}
	ErrScript         = &HelperError{Code: "E_SCRIPT", Exit: 1}
	ErrPartialBatch   = &HelperError{Code: "E_PARTIAL_BATCH", Exit: 1}
)
