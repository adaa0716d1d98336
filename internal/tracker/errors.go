package tracker

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Every failure leaving the service wraps
// exactly one of these, so HTTP mapping works with errors.Is.
var (
	// ErrDuplicateApplication indicates the user already applied to the job.
	ErrDuplicateApplication = errors.New("tracker: application already exists for this job")
	// ErrNotFound covers both absent applications and applications owned by a
	// different user, so existence never leaks across accounts.
	ErrNotFound = errors.New("tracker: application not found")
	// ErrInvalidInput indicates malformed caller input; never retried.
	ErrInvalidInput = errors.New("tracker: invalid input")
	// ErrStorageUnavailable indicates the persistence layer failed or timed
	// out; retry is the caller's decision.
	ErrStorageUnavailable = errors.New("tracker: storage unavailable")
)

// ServiceError carries a stable machine-readable code alongside the error
// kind and the underlying cause.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes the underlying cause for errors.As chains.
func (e *ServiceError) Unwrap() error {
	return e.err
}

// Is matches the error kind so callers can branch with errors.Is.
func (e *ServiceError) Is(target error) bool {
	return target == e.kind
}

// Code returns the stable error identifier of the form tracker.<operation>.<reason>.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the sentinel kind wrapped by this error.
func (e *ServiceError) Kind() error {
	return e.kind
}

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}
