package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	// AllowOrigins lists the origins echoed back to browsers. Empty allows any origin.
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows every origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

// corsHeaders precomputes the static headers and resolves the allowed origin per request.
type corsHeaders struct {
	origins []string
	methods string
	headers string
	maxAge  string
}

func newCORSHeaders(config CORSConfig) corsHeaders {
	return corsHeaders{
		origins: config.AllowOrigins,
		methods: strings.Join(config.AllowMethods, ", "),
		headers: strings.Join(config.AllowHeaders, ", "),
		maxAge:  strconv.Itoa(config.MaxAge),
	}
}

// origin returns the Access-Control-Allow-Origin value for a request origin,
// or "" when the origin is not allowed.
func (c corsHeaders) origin(requestOrigin string) string {
	if len(c.origins) == 0 {
		return "*"
	}
	if requestOrigin != "" && slices.Contains(c.origins, requestOrigin) {
		return requestOrigin
	}
	return ""
}

func (c corsHeaders) apply(set func(key, value string), requestOrigin string) {
	origin := c.origin(requestOrigin)
	if origin == "" {
		return
	}
	set("Access-Control-Allow-Origin", origin)
	if origin != "*" {
		set("Vary", "Origin")
	}
	set("Access-Control-Allow-Methods", c.methods)
	set("Access-Control-Allow-Headers", c.headers)
	set("Access-Control-Max-Age", c.maxAge)
}

// NewCORSMiddleware adds CORS headers to API responses.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	cors := newCORSHeaders(config)
	return func(ctx huma.Context, next func(huma.Context)) {
		cors.apply(ctx.SetHeader, ctx.Header("Origin"))
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests. Huma middleware runs after
// routing, so OPTIONS needs its own mux entry.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	cors := newCORSHeaders(config)
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		cors.apply(w.Header().Set, r.Header.Get("Origin"))
		w.WriteHeader(http.StatusNoContent)
	})
}
