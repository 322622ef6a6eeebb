package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camview/internal/logging"
)

// redactQuery hides the ?auth= credentials event stream clients pass.
func redactQuery(raw string) string {
	if raw == "" || !strings.Contains(raw, "auth=") {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparsable]"
	}
	if values.Has("auth") {
		values.Set("auth", "REDACTED")
	}
	return values.Encode()
}

// HTTPLoggingMiddleware logs each request once it completes. The level
// follows the status: preflights and finished event streams at debug, 4xx
// at warn, 5xx at error.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := redactQuery(ctx.URL().RawQuery); query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if camera := ctx.Param("camera_id"); camera != "" {
		attrs = append(attrs, slog.String("camera_id", camera))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	message := "HTTP request completed"
	level := slog.LevelInfo
	switch {
	case method == http.MethodOptions:
		level = slog.LevelDebug
	case strings.HasPrefix(ctx.Header("Accept"), "text/event-stream"):
		message = "Event stream closed"
		level = slog.LevelDebug
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx.Context(), level, message, attrs...)
}
