package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"isd-finance-ai/internal/handlers"
	"isd-finance-ai/internal/service"
	"isd-finance-ai/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	ChatService service.ChatService
	VectorStore vectorstore.VectorStore
	Completions handlers.Pinger
	Collection  string
	Landing     *handlers.LandingHandler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Add CORS middleware
	r.Use(CORS)

	// Request-scoped structured logger
	r.Use(LoggerMiddleware)

	chatHandler := handlers.NewChatHandler(deps.ChatService)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Completions, deps.Collection)

	// Register API routes
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/chat", chatHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	if deps.Landing != nil {
		r.Method(http.MethodGet, "/", deps.Landing)
	}

	return r
}
