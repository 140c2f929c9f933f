package xapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dghubble/go-twitter/twitter"

	"github.com/mikequentel/xpost/internal/model"
)

// APIError is a non-2xx response. Body is kept verbatim.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Endpoint, e.Status, strings.TrimSpace(e.Body))
}

// Detail summarises the body when it is a v2 problem document or a v1.1 error
// list, and adds a hint for the usual permission failures. It falls back to the
// raw body.
func (e *APIError) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed with HTTP %d", e.Endpoint, e.Status)

	var p model.Problem
	var v1 twitter.APIError
	switch {
	case json.Unmarshal([]byte(e.Body), &p) == nil && (p.Title != "" || p.Detail != ""):
		fmt.Fprintf(&b, ": %s", p.Title)
		if p.Detail != "" {
			fmt.Fprintf(&b, " (%s)", p.Detail)
		}
	case json.Unmarshal([]byte(e.Body), &v1) == nil && len(v1.Errors) > 0:
		for i, d := range v1.Errors {
			if i > 0 {
				b.WriteString(";")
			}
			fmt.Fprintf(&b, " code %d: %s", d.Code, d.Message)
		}
	default:
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(e.Body))
	}

	if e.Status == 401 || e.Status == 403 {
		b.WriteString(". Check app permissions at https://developer.x.com/en/portal/dashboard")
	}
	return b.String()
}

// TransportError means the service could not be reached or the response body
// could not be read.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Endpoint, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a 2xx response whose body is not what the endpoint promises.
type DecodeError struct {
	Endpoint string
	Body     string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Endpoint, e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }
