package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrProtocol = errors.New("blobs: received an unexpected response from the storage backend; " +
	"please upgrade to the latest version of the client")

// InternalError is a backend failure that the client cannot recover from.
type InternalError struct {
	Status    int
	RequestID string
	Detail    string
	Err       error
}

// NewInternalError captures the status and correlation headers of res.
func NewInternalError(res *http.Response) *InternalError {
	return &InternalError{
		Status:    res.StatusCode,
		RequestID: res.Header.Get(HeaderRequestID),
		Detail:    res.Header.Get(HeaderError),
	}
}

// NewProtocolError reports a response the client could not understand.
func NewProtocolError(res *http.Response, cause error) *InternalError {
	e := NewInternalError(res)
	e.Err = fmt.Errorf("%w: %v", ErrProtocol, cause)
	return e
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	details := e.Detail
	if details == "" {
		details = fmt.Sprintf("%d status code", e.Status)
	}
	if e.RequestID != "" {
		details += ", ID: " + e.RequestID
	}
	return "blobs: internal error (" + details + ")"
}

func (e *InternalError) Unwrap() error { return e.Err }
