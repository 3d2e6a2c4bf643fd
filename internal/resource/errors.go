package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a request rejected before reaching the store.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a mutation whose target identity does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks a write that collides with an existing identity.
	ErrConflict = errors.New("record already exists")
)

// ServiceError carries a stable "<operation>.<reason>" code safe to expose to
// clients while keeping the underlying cause for logs.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

// NewServiceError builds a ServiceError for operation failing with reason.
func NewServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ErrorCode returns the code of the first ServiceError in err's chain.
func ErrorCode(err error) (string, bool) {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code(), true
	}
	return "", false
}
