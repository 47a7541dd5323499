package service

import (
	"net/http"

	"gemini-proxy-go/internal/model"
)

// Forwarding mode names, also used as metric and log labels.
const (
	ModeOpenAI = "openai"
	ModeNative = "native"
	ModeFusion = "fusion"
)

// Mode is one REST translation strategy. A mode turns an inbound request into
// an upstream call and decides which headers the caller sees.
type Mode interface {
	// Name returns the mode label.
	Name() string
	// Build resolves the upstream call. body holds the fully read inbound body.
	// Failures are returned as *ProxyError.
	Build(r *http.Request, body []byte) (*model.ForwardRequest, error)
	// ResponseHeader maps upstream response headers to the headers returned
	// to the caller.
	ResponseHeader(upstream http.Header) http.Header
	// Unreachable reports a failure to complete the upstream call.
	Unreachable(err error) *ProxyError
}

// originOnlyHeader is the header policy of the native and fusion modes: the
// upstream Content-Type (JSON when absent) and a permissive origin.
func originOnlyHeader(upstream http.Header) http.Header {
	h := make(http.Header, 2)
	ct := upstream.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	h.Set("Content-Type", ct)
	h.Set("Access-Control-Allow-Origin", "*")
	return h
}

// jsonHeader returns a request header that carries only a JSON content type.
func jsonHeader() http.Header {
	return http.Header{"Content-Type": {"application/json"}}
}
