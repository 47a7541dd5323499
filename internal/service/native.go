package service

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gemini-proxy-go/internal/model"
)

// apiVersionSegment separates the proxy-side prefix from the upstream resource path.
const apiVersionSegment = "/v1beta/"

// nativeMode forwards generateContent calls, moving the bearer credential
// into the key query parameter.
type nativeMode struct {
	baseURL string
}

func (m *nativeMode) Name() string { return ModeNative }

func (m *nativeMode) Build(r *http.Request, body []byte) (*model.ForwardRequest, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, newProxyError(KindMissingKey, http.StatusUnauthorized, originOnlyHeader(nil), "Authorization header required")
	}
	key, ok := bearerKey(auth)
	if !ok {
		return nil, newProxyError(KindMalformedBody, http.StatusBadRequest, originOnlyHeader(nil), "Malformed Authorization header")
	}

	target, err := url.Parse(m.baseURL + "/" + resourcePath(r.URL.EscapedPath()))
	if err != nil {
		pe := newProxyError(KindMalformedBody, http.StatusBadRequest, originOnlyHeader(nil), "Invalid request path")
		pe.Err = fmt.Errorf("parse upstream url: %w", err)
		return nil, pe
	}
	q := target.Query()
	q.Add("key", key)
	target.RawQuery = q.Encode()

	fr := &model.ForwardRequest{
		Mode:   ModeNative,
		Method: r.Method,
		URL:    target.String(),
		Header: jsonHeader(),
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		fr.Body = body
	}
	return fr, nil
}

func (m *nativeMode) ResponseHeader(upstream http.Header) http.Header {
	return originOnlyHeader(upstream)
}

func (m *nativeMode) Unreachable(err error) *ProxyError {
	pe := newProxyError(KindUpstreamUnreachable, http.StatusInternalServerError, originOnlyHeader(nil), "Error forwarding request")
	pe.Err = err
	return pe
}

// bearerKey returns the second space-delimited token of an Authorization
// header value. The scheme itself is not checked.
func bearerKey(auth string) (string, bool) {
	parts := strings.Split(auth, " ")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// resourcePath returns the part of path after the API version segment, or the
// path without its leading slash when no version segment is present.
func resourcePath(path string) string {
	if i := strings.Index(path, apiVersionSegment); i >= 0 {
		return path[i+len(apiVersionSegment):]
	}
	return strings.TrimPrefix(path, "/")
}
