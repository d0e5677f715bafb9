package blobs

import (
	"errors"
	"fmt"

	"github.com/aweris/blobs/internal/metadata"
	"github.com/aweris/blobs/internal/remote"
)

var (
	ErrMissingEnvironment = errors.New("blobs: the environment has not been configured to use blobs; " +
		"supply the siteID and token options when creating a store")
	ErrMissingTransport = errors.New("blobs: no HTTP client available; supply one with WithHTTPClient")
	ErrMissingStoreName = errors.New("blobs: store name is required")
	ErrMissingDeployID  = errors.New("blobs: deploy ID is required; set it with WithDeployID or through the environment")
	ErrMissingRegion    = errors.New("blobs: a region is required for edge access and none was found in the environment; " +
		"set it with WithRegion")
	ErrValidation = errors.New("blobs: validation failed")

	ErrConsistency      = remote.ErrConsistency
	ErrProtocol         = remote.ErrProtocol
	ErrMetadataTooLarge = metadata.ErrTooLarge
)

// InternalError is returned when the backend answers with an unexpected status.
// It carries the status code and, when present, the request ID or error detail
// reported by the backend.
type InternalError = remote.InternalError

// ValidationError reports a malformed argument. It is detected before any
// request is sent and matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("blobs: invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("blobs: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}
