package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/model"
)

// Route is the handling path selected for an inbound request.
type Route int

// Routes in classification priority order.
const (
	RouteRelay Route = iota
	RouteOpenAI
	RouteNative
	RouteFusion
	RouteAck
)

func (r Route) String() string {
	switch r {
	case RouteRelay:
		return "relay"
	case RouteOpenAI:
		return "openai"
	case RouteNative:
		return "native"
	case RouteFusion:
		return "fusion"
	case RouteAck:
		return "ack"
	default:
		return "unknown"
	}
}

// openAISuffixes are the OpenAI-compatible endpoints.
var openAISuffixes = []string{"/chat/completions", "/embeddings", "/models"}

const generateContentMarker = ":generateContent"

// Router classifies every request that no static route claimed and hands it
// to the matching handler.
type Router struct {
	fusionPath string
	proxy      *ProxyHandler
	relay      *RelayHandler
}

// NewRouter creates a Router.
func NewRouter(cfg *config.Config, proxy *ProxyHandler, relay *RelayHandler) *Router {
	return &Router{
		fusionPath: cfg.Fusion.Path,
		proxy:      proxy,
		relay:      relay,
	}
}

// Classify selects exactly one route for r. The first matching rule wins.
func (rt *Router) Classify(r *http.Request) Route {
	return classify(r, rt.fusionPath)
}

func classify(r *http.Request, fusionPath string) Route {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return RouteRelay
	}

	path := r.URL.Path
	for _, suffix := range openAISuffixes {
		if strings.HasSuffix(path, suffix) {
			return RouteOpenAI
		}
	}
	if strings.Contains(path, generateContentMarker) {
		return RouteNative
	}
	if path == fusionPath {
		return RouteFusion
	}
	return RouteAck
}

// Dispatch is the catch-all echo handler.
func (rt *Router) Dispatch(c echo.Context) error {
	switch rt.Classify(c.Request()) {
	case RouteRelay:
		return rt.relay.Handle(c)
	case RouteOpenAI:
		return rt.proxy.OpenAI(c)
	case RouteNative:
		return rt.proxy.Native(c)
	case RouteFusion:
		return rt.proxy.Fusion(c)
	default:
		return ack(c)
	}
}

// ack answers requests no mode claims.
func ack(c echo.Context) error {
	model.ApplyCORS(c.Response().Header())
	return c.String(http.StatusOK, "ok")
}
