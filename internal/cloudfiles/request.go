package cloudfiles

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoints are the service locations a session grants access to. Request
// targets are resolved against them at dispatch time, after the session is
// known to be valid.
type Endpoints struct {
	Storage string
	CDN     string
}

// Request describes one API operation. Every operation builds a fresh
// Request and discards it once the exchange completes.
type Request struct {
	Method string

	// Target builds the absolute URL from the session's endpoints.
	Target func(Endpoints) (string, error)

	Header http.Header

	// Body is streamed as the request payload. ContentLength is sent when
	// positive; otherwise the body is chunked.
	Body          io.Reader
	ContentLength int64

	// Timeout bounds the whole exchange. Zero means no limit.
	Timeout time.Duration

	// Progress observes the request body for uploads and the response body
	// for everything else.
	Progress *Progress

	scope scope
}

// NewRequest returns a request against the storage endpoint. The path is
// appended verbatim, so callers escape their own segments.
func NewRequest(method, path string, query url.Values) *Request {
	return &Request{
		Method: method,
		Header: make(http.Header),
		Target: func(ep Endpoints) (string, error) {
			if ep.Storage == "" {
				return "", fmt.Errorf("%w: no storage endpoint", ErrInvalidArgument)
			}

			target := strings.TrimRight(ep.Storage, "/") + path
			if len(query) > 0 {
				target += "?" + query.Encode()
			}

			return target, nil
		},
	}
}

func storageTarget(query url.Values, segments ...string) func(Endpoints) (string, error) {
	return func(ep Endpoints) (string, error) {
		return buildURL(ep.Storage, segments, query)
	}
}

func cdnTarget(query url.Values, segments ...string) func(Endpoints) (string, error) {
	return func(ep Endpoints) (string, error) {
		if ep.CDN == "" {
			return "", ErrCDNUnavailable
		}

		return buildURL(ep.CDN, segments, query)
	}
}

func fixedTarget(target string) func(Endpoints) (string, error) {
	return func(Endpoints) (string, error) {
		return target, nil
	}
}

// buildURL joins path-escaped segments onto base and appends the query.
// Object names are escaped as a single segment, so embedded slashes are
// sent as %2F.
func buildURL(base string, segments []string, query url.Values) (string, error) {
	if base == "" {
		return "", fmt.Errorf("%w: no endpoint", ErrInvalidArgument)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))

	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}

	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}

	return b.String(), nil
}
