package cloudfiles

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// Response is a completed exchange with its body fully buffered. The
// network connection is already released when a Response is returned.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentType   string
	ContentLength int64

	body []byte
	text bool
}

func newResponse(resp *http.Response, body []byte) *Response {
	ct := resp.Header.Get("Content-Type")

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentType:   ct,
		ContentLength: int64(len(body)),
		body:          body,
		text:          isTextContent(ct),
	}
}

// isTextContent reports whether a content type is a listing or serialized
// document rather than object data.
func isTextContent(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch mt {
	case "text/plain", "application/json", "application/xml", "text/xml":
		return true
	default:
		return false
	}
}

// IsText reports whether the body was recognized as a textual document.
func (r *Response) IsText() bool {
	return r.text
}

// Text returns the body as a string, or "" for binary payloads.
func (r *Response) Text() string {
	if !r.text {
		return ""
	}

	return string(r.body)
}

// Lines splits a text body into its non-empty lines, which is how the
// service returns plain listings.
func (r *Response) Lines() []string {
	if !r.text {
		return nil
	}

	var lines []string

	for _, l := range strings.Split(string(r.body), "\n") {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}

	return lines
}

// Body returns a fresh reader positioned at the start of the buffered
// payload. Each call returns an independent reader.
func (r *Response) Body() *bytes.Reader {
	return bytes.NewReader(r.body)
}

// Bytes returns the buffered payload.
func (r *Response) Bytes() []byte {
	return r.body
}

// Metadata collects headers carrying prefix, keyed by the remainder of the
// header name.
func (r *Response) Metadata(prefix string) map[string]string {
	meta := make(map[string]string)

	for k, v := range r.Header {
		if len(k) > len(prefix) && strings.EqualFold(k[:len(prefix)], prefix) && len(v) > 0 {
			meta[k[len(prefix):]] = v[0]
		}
	}

	return meta
}

// headerInt returns a numeric header, or 0 when it is absent.
func (r *Response) headerInt(name string) (int64, error) {
	v := r.Header.Get(name)
	if v == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cloudfiles: parsing %s header %q: %w", name, v, err)
	}

	return n, nil
}

func (r *Response) headerBool(name string) bool {
	b, err := strconv.ParseBool(r.Header.Get(name))
	return err == nil && b
}
