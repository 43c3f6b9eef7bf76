package cloudfiles

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Naming limits enforced by the service.
const (
	maxContainerNameLength = 256
	maxObjectNameLength    = 1024
	maxMetaKeyLength       = 128
	maxMetaValueLength     = 256
)

// Metadata header prefixes.
const (
	objectMetaPrefix    = "X-Object-Meta-"
	containerMetaPrefix = "X-Container-Meta-"
)

// validateContainerName returns the NFC form of name, or an error if the
// service would reject it.
func validateContainerName(name string) (string, error) {
	name = norm.NFC.String(name)

	switch {
	case name == "":
		return "", fmt.Errorf("%w: container name is empty", ErrInvalidArgument)
	case strings.ContainsAny(name, "?/"):
		return "", fmt.Errorf("%w: %q contains '?' or '/'", ErrInvalidContainerName, name)
	case len(name) > maxContainerNameLength:
		return "", fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidContainerName, name, maxContainerNameLength)
	}

	return name, nil
}

// validateObjectName returns the NFC form of name with one leading slash
// removed.
func validateObjectName(name string) (string, error) {
	name = strings.TrimPrefix(norm.NFC.String(name), "/")

	switch {
	case name == "":
		return "", fmt.Errorf("%w: storage item name is empty", ErrInvalidArgument)
	case len(name) > maxObjectNameLength:
		return "", fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidObjectName, name, maxObjectNameLength)
	}

	return name, nil
}

// metadataHeaders turns user metadata into prefixed headers. Keys that
// already carry the prefix are passed through.
func metadataHeaders(h http.Header, prefix string, meta map[string]string) error {
	for k, v := range meta {
		if k == "" || v == "" {
			return fmt.Errorf("%w: empty key or value", ErrInvalidMetadata)
		}

		if len(k) > len(prefix) && strings.EqualFold(k[:len(prefix)], prefix) {
			k = k[len(prefix):]
		}

		if len(k) > maxMetaKeyLength {
			return fmt.Errorf("%w: key %q is longer than %d bytes", ErrInvalidMetadata, k, maxMetaKeyLength)
		}

		if len(v) > maxMetaValueLength {
			return fmt.Errorf("%w: value for %q is longer than %d bytes", ErrInvalidMetadata, k, maxMetaValueLength)
		}

		h.Set(prefix+k, v)
	}

	return nil
}

// RequestHeader names a conditional or partial-content header accepted by
// GetStorageItem.
type RequestHeader int

const (
	IfMatch RequestHeader = iota
	IfNoneMatch
	IfModifiedSince
	IfUnmodifiedSince
	Range
)

func (h RequestHeader) String() string {
	switch h {
	case IfMatch:
		return "If-Match"
	case IfNoneMatch:
		return "If-None-Match"
	case IfModifiedSince:
		return "If-Modified-Since"
	case IfUnmodifiedSince:
		return "If-Unmodified-Since"
	case Range:
		return "Range"
	default:
		return fmt.Sprintf("RequestHeader(%d)", int(h))
	}
}

var rangePattern = regexp.MustCompile(`^[0-9]*-[0-9]*$`)

// dateLayouts are the accepted spellings for conditional date headers.
var dateLayouts = []string{
	http.TimeFormat,
	time.RFC850,
	time.ANSIC,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// requestHeaders validates fields and renders them as HTTP headers. Dates
// are re-emitted in HTTP date format; ranges become "bytes=<from>-<to>".
func requestHeaders(fields map[RequestHeader]string) (http.Header, error) {
	h := make(http.Header)

	for field, v := range fields {
		switch field {
		case IfMatch, IfNoneMatch:
			h.Set(field.String(), v)
		case IfModifiedSince, IfUnmodifiedSince:
			t, err := parseDate(v)
			if err != nil {
				return nil, err
			}

			h.Set(field.String(), t.UTC().Format(http.TimeFormat))
		case Range:
			if !rangePattern.MatchString(v) || v == "-" {
				return nil, fmt.Errorf("%w: %q", ErrInvalidRangeHeader, v)
			}

			h.Set(field.String(), "bytes="+v)
		default:
			return nil, fmt.Errorf("%w: unknown request header %d", ErrInvalidArgument, int(field))
		}
	}

	return h, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateHeader, v)
}
