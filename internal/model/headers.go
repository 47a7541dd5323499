package model

import (
	"net/http"
	"strings"
)

// corsHeaders is the fixed CORS and browser-hardening header set attached to
// proxy responses.
var corsHeaders = [...][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type, Authorization"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Xss-Protection", "0"},
}

// HopByHopHeaders are headers that must not be forwarded by proxies.
var HopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ApplyCORS sets the full CORS header set on h, replacing existing values.
func ApplyCORS(h http.Header) {
	for _, kv := range corsHeaders {
		h.Set(kv[0], kv[1])
	}
}

// CORSHeader returns a new header containing only the CORS header set.
func CORSHeader() http.Header {
	h := make(http.Header, len(corsHeaders))
	ApplyCORS(h)
	return h
}

// StripHopByHop removes hop-by-hop headers, including any named in Connection.
func StripHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range HopByHopHeaders {
		h.Del(name)
	}
}
