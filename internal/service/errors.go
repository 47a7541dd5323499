package service

import (
	"fmt"
	"net/http"
)

// ErrorKind tags the failure class of a ProxyError.
type ErrorKind int

// Error kinds. Upstream non-2xx responses are not errors; they are relayed
// to the caller as-is.
const (
	KindMissingKey ErrorKind = iota + 1
	KindMalformedBody
	KindUpstreamUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingKey:
		return "missing_key"
	case KindMalformedBody:
		return "malformed_body"
	case KindUpstreamUnreachable:
		return "upstream_unreachable"
	default:
		return "unknown"
	}
}

// ErrorBody is the JSON body returned to REST callers on failure.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ProxyError is a forwarding failure together with the HTTP response that
// reports it.
type ProxyError struct {
	Kind   ErrorKind
	Status int
	Body   ErrorBody
	// Header carries the response header policy of the mode that failed.
	Header http.Header
	Err    error
}

func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Body.Error, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Body.Error)
}

func (e *ProxyError) Unwrap() error { return e.Err }

func newProxyError(kind ErrorKind, status int, header http.Header, msg string) *ProxyError {
	return &ProxyError{
		Kind:   kind,
		Status: status,
		Body:   ErrorBody{Error: msg},
		Header: header,
	}
}
