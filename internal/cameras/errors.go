package cameras

import "fmt"

// Error is a registry failure.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so errors.Is(err, ErrCameraNotFound) holds for
// any not found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error codes
const (
	ErrCodeCameraNotFound = "CAMERA_NOT_FOUND"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeStorageError   = "STORAGE_ERROR"
)

// Sentinels for errors.Is.
var (
	ErrCameraNotFound = &Error{Code: ErrCodeCameraNotFound, Message: "camera not found"}
	ErrInvalidParams  = &Error{Code: ErrCodeInvalidParams, Message: "invalid camera"}
)

func notFound(id int64) error {
	return &Error{Code: ErrCodeCameraNotFound, Message: fmt.Sprintf("camera %d not found", id)}
}

func invalid(msg string) error {
	return &Error{Code: ErrCodeInvalidParams, Message: msg}
}

func storageError(msg string, cause error) error {
	return &Error{Code: ErrCodeStorageError, Message: msg, Cause: cause}
}
