// Package model defines shared types for the proxy.
package model

import (
	"net/http"
)

// ForwardRequest is a fully resolved upstream call built from one inbound request.
type ForwardRequest struct {
	Mode   string
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// ForwardResponse is the upstream response, read to completion.
type ForwardResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
