// Package cloudfiles is a client for the Rackspace Cloud Files object storage
// API. It owns the session lifecycle (initial authentication, transparent
// renewal after the service rejects a token) and classifies HTTP failures
// into typed errors that callers branch on with errors.Is.
package cloudfiles

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, cloudfiles.ErrContainerNotFound) to check.
var (
	ErrContainerNotFound       = errors.New("cloudfiles: container not found")
	ErrStorageItemNotFound     = errors.New("cloudfiles: storage item not found")
	ErrContainerNotEmpty       = errors.New("cloudfiles: container not empty")
	ErrPreconditionFailed      = errors.New("cloudfiles: precondition failed")
	ErrContainerAlreadyExists  = errors.New("cloudfiles: container already exists")
	ErrPublicContainerNotFound = errors.New("cloudfiles: public container not found")
	ErrAuthenticationFailed    = errors.New("cloudfiles: authentication failed")
	ErrUnauthorizedAccess      = errors.New("cloudfiles: unauthorized access")
)

// Argument and state errors. These are returned before any network call and
// are never retried.
var (
	ErrInvalidArgument      = errors.New("cloudfiles: invalid argument")
	ErrInvalidContainerName = errors.New("cloudfiles: invalid container name")
	ErrInvalidObjectName    = errors.New("cloudfiles: invalid storage item name")
	ErrInvalidMetadata      = errors.New("cloudfiles: invalid metadata")
	ErrInvalidRangeHeader   = errors.New("cloudfiles: invalid range header")
	ErrInvalidDateHeader    = errors.New("cloudfiles: invalid date header")
	ErrInsecureURL          = errors.New("cloudfiles: insecure url")
	ErrCDNUnavailable       = errors.New("cloudfiles: account has no CDN management endpoint")
	ErrClosed               = errors.New("cloudfiles: connection closed")
)

// Error wraps a sentinel error with the HTTP status code, the service's
// transaction id, and the response body for debugging. Err is nil when the
// status does not map to a known condition.
type Error struct {
	StatusCode int
	TransID    string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	prefix := "cloudfiles:"
	if e.Err != nil {
		prefix = e.Err.Error() + ":"
	}

	msg := fmt.Sprintf("%s HTTP %d", prefix, e.StatusCode)
	if e.TransID != "" {
		msg += fmt.Sprintf(" (trans-id: %s)", e.TransID)
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// scope tells the classifier what kind of resource a request addressed, so
// a 404 can be reported as the right "not found".
type scope int

const (
	scopeAccount scope = iota
	scopeContainer
	scopeStorageItem
	scopePublicContainer
)

// classifyStatus maps a failed exchange's status code to a sentinel error.
// It is a pure function of its inputs. Returns nil when the status has no
// domain meaning and the caller should surface it unclassified.
func classifyStatus(code int, s scope) error {
	switch code {
	case http.StatusNotFound:
		switch s {
		case scopeContainer:
			return ErrContainerNotFound
		case scopeStorageItem:
			return ErrStorageItemNotFound
		case scopePublicContainer:
			return ErrPublicContainerNotFound
		default:
			return nil
		}
	case http.StatusConflict:
		return ErrContainerNotEmpty
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusUnauthorized:
		return ErrAuthenticationFailed
	default:
		return nil
	}
}

// isSuccess reports whether code is in the OK family the service uses:
// 200 through 206.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code <= http.StatusPartialContent
}
