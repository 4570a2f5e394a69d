package http

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wires the REST endpoints and the websocket endpoint onto one
// handler. The websocket route skips the logging middleware; its requests
// are long-lived.
type Router struct {
	handler *Handler
	ws      http.Handler
	logger  *zap.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(handler *Handler, ws http.Handler, logger *zap.Logger) *Router {
	return &Router{handler: handler, ws: ws, logger: logger}
}

// Setup sets up the HTTP routes.
func (r *Router) Setup() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/documents", r.handler.Documents)
	apiMux.HandleFunc("/api/documents/", r.handler.Document)
	apiMux.HandleFunc("/healthz", r.handler.Healthz)

	apiHandler := ApplyMiddleware(apiMux,
		RecoveryMiddleware(r.logger),
		LoggingMiddleware(r.logger))

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/ws" {
			r.ws.ServeHTTP(w, req)
			return
		}
		apiHandler.ServeHTTP(w, req)
	})
}
