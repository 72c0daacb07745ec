package middleware

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterOptions assembles the SSE server. Auth and RateLimiter are optional.
type RouterOptions struct {
	SSE         *SSE
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Name        string
	Version     string
	Logger      *zap.Logger
}

// NewRouter wires the MCP endpoints and the public status routes.
func NewRouter(opts RouterOptions) http.Handler {
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(Recovery(lg))
	r.Use(CORS)
	r.Use(AccessLog(lg.Named("http")))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, statusPage,
			html.EscapeString(opts.Name),
			html.EscapeString(opts.Name), html.EscapeString(opts.Version),
			opts.SSE.ActiveSessions(),
			MessagePath,
		)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"name":     opts.Name,
			"version":  opts.Version,
			"sessions": opts.SSE.ActiveSessions(),
		})
	})

	r.Group(func(mcp chi.Router) {
		if opts.Auth != nil {
			mcp.Use(opts.Auth.Middleware)
		}
		if opts.RateLimiter != nil {
			mcp.Use(opts.RateLimiter.Middleware)
		}
		mcp.Get("/sse", opts.SSE.HandleSSE)
		mcp.Post(MessagePath, opts.SSE.HandleMessage)
		mcp.Post("/mcp", opts.SSE.HandleInline)
	})

	return r
}

const statusPage = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s %s</h1>
<p>Status: running</p>
<p>Active sessions: %d</p>
<ul>
<li>GET /sse opens an MCP session</li>
<li>POST %s?sessionId=&lt;id&gt; sends a message</li>
<li>POST /mcp answers a message inline</li>
</ul>
</body>
</html>
`
