package errors

import (
	defError "errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// APIError is the error type every handler and service returns. Status maps
// onto the HTTP response; Internal carries the underlying cause for logs and
// is never serialized to clients.
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Internal error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Internal
}

func New(status int, message string, internal error) *APIError {
	return &APIError{
		Status:   status,
		Message:  message,
		Internal: internal,
	}
}

func BadRequest(message string, err error) *APIError {
	return New(http.StatusBadRequest, message, err)
}

func Unauthorized(message string, err error) *APIError {
	return New(http.StatusUnauthorized, message, err)
}

func Forbidden(message string, err error) *APIError {
	return New(http.StatusForbidden, message, err)
}

func NotFound(message string, err error) *APIError {
	return New(http.StatusNotFound, message, err)
}

func Conflict(message string, err error) *APIError {
	return New(http.StatusConflict, message, err)
}

func UnprocessableEntity(message string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, message, err)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// NewValidationError wraps gin binding failures as 422, naming the
// offending fields when the failure came from struct validation.
func NewValidationError(err error) *APIError {
	var fieldErrors validator.ValidationErrors
	if defError.As(err, &fieldErrors) {
		messages := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			messages = append(messages, fieldMessage(fe))
		}
		return New(http.StatusUnprocessableEntity, strings.Join(messages, "; "), err)
	}
	return New(http.StatusUnprocessableEntity, "Validation failed", err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
