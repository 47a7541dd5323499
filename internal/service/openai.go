package service

import (
	"net/http"
	"net/url"

	"gemini-proxy-go/internal/model"
	"gemini-proxy-go/internal/redact"
)

// openAIMode forwards OpenAI-compatible calls (chat/completions, embeddings,
// models) with the caller's key query parameter.
type openAIMode struct {
	baseURL string
}

func (m *openAIMode) Name() string { return ModeOpenAI }

func (m *openAIMode) Build(r *http.Request, body []byte) (*model.ForwardRequest, error) {
	key := r.URL.Query().Get("key")
	if key == "" {
		return nil, newProxyError(KindMissingKey, http.StatusBadRequest, model.CORSHeader(), "API key is required")
	}

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	model.StripHopByHop(header)
	header.Del("Host")
	header.Del("Content-Length")
	header.Set("Content-Type", "application/json")

	if len(body) == 0 {
		body = nil
	}

	return &model.ForwardRequest{
		Mode:   ModeOpenAI,
		Method: r.Method,
		URL:    m.baseURL + r.URL.EscapedPath() + "?" + url.Values{"key": {key}}.Encode(),
		Header: header,
		Body:   body,
	}, nil
}

// ResponseHeader keeps the upstream headers and overlays the CORS set.
func (m *openAIMode) ResponseHeader(upstream http.Header) http.Header {
	h := upstream.Clone()
	if h == nil {
		h = make(http.Header)
	}
	model.StripHopByHop(h)
	h.Del("Content-Length")
	model.ApplyCORS(h)
	return h
}

func (m *openAIMode) Unreachable(err error) *ProxyError {
	pe := newProxyError(KindUpstreamUnreachable, http.StatusInternalServerError, model.CORSHeader(), "Error forwarding request")
	pe.Body.Details = redact.Error(err)
	pe.Err = err
	return pe
}
