package rest

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/observability"
)

// ChatService is the slice of the orchestrator the HTTP layer drives.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, text string) (domain.ChatReply, error)
	Reset(sessionID string)
	Sessions() []string
}

// Options configures the HTTP adapter.
type Options struct {
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// Handler manages the HTTP interface for our application.
type Handler struct {
	svc     ChatService
	router  chi.Router
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(svc ChatService, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &Handler{
		svc:     svc,
		router:  chi.NewRouter(),
		logger:  logger,
		metrics: opts.Metrics,
	}

	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(middleware.Recoverer)
	h.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	// Register Routes
	h.routes()

	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.router.Route("/api", func(api chi.Router) {
		api.Get("/health", h.HealthCheck)
		api.Post("/chat", h.Chat)
		api.Post("/chat/reset", h.ResetChat)
		api.Get("/chat/sessions", h.ListSessions)
	})
	h.router.Method(http.MethodGet, "/metrics", h.metrics.Handler())
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "moodlist is live 🎶"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// isJSONContentType accepts a missing header so curl-style clients still work.
func isJSONContentType(r *http.Request) bool {
	ct := strings.TrimSpace(r.Header.Get("Content-Type"))
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}
