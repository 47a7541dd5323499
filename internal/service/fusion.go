package service

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"gemini-proxy-go/internal/model"
	"gemini-proxy-go/internal/redact"
)

var errInvalidJSON = errors.New("request body is not valid JSON")

// fusionMode takes the model and key from the JSON body and POSTs the
// content field (or the whole body) to the model's generateContent endpoint.
type fusionMode struct {
	baseURL string
}

func (m *fusionMode) Name() string { return ModeFusion }

func (m *fusionMode) Build(_ *http.Request, body []byte) (*model.ForwardRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, m.failure(KindMalformedBody, errInvalidJSON)
	}

	modelName := gjson.GetBytes(body, "model")
	key := gjson.GetBytes(body, "key")
	if !truthy(modelName) || !truthy(key) {
		return nil, newProxyError(KindMalformedBody, http.StatusBadRequest, originOnlyHeader(nil), "Missing required fields: model or key")
	}

	target, err := url.Parse(m.baseURL + "/models/" + modelName.String() + ":generateContent")
	if err != nil {
		return nil, m.failure(KindMalformedBody, fmt.Errorf("parse upstream url: %w", err))
	}
	q := target.Query()
	q.Add("key", key.String())
	target.RawQuery = q.Encode()

	payload := body
	if content := gjson.GetBytes(body, "content"); truthy(content) {
		payload = []byte(content.Raw)
	}

	return &model.ForwardRequest{
		Mode:   ModeFusion,
		Method: http.MethodPost,
		URL:    target.String(),
		Header: jsonHeader(),
		Body:   []byte(gjson.GetBytes(payload, "@ugly").Raw),
	}, nil
}

func (m *fusionMode) ResponseHeader(upstream http.Header) http.Header {
	return originOnlyHeader(upstream)
}

func (m *fusionMode) Unreachable(err error) *ProxyError {
	return m.failure(KindUpstreamUnreachable, err)
}

// failure builds the catch-all fusion error: every fault on this path is
// reported as a 500 with the cause in details.
func (m *fusionMode) failure(kind ErrorKind, err error) *ProxyError {
	pe := newProxyError(kind, http.StatusInternalServerError, originOnlyHeader(nil), "Error handling fusion request")
	pe.Body.Details = redact.Error(err)
	pe.Err = err
	return pe
}

// truthy reports whether a JSON value counts as present: not missing, null,
// false, zero or the empty string.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return true
	}
}
