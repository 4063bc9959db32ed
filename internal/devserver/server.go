package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/nestsync/internal/logging"
	"github.com/matheus3301/nestsync/internal/store"
	"go.uber.org/zap"
)

// Server is a local stand-in for the marketplace messaging API. It answers
// "nothing yet" with 404 the way the production API does.
type Server struct {
	db       *store.DB
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time source used for new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithCORSOrigins allows browser clients from origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a server backed by db.
func New(db *store.DB, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		db:       db,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		origins:  []string{"http://localhost:3000"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Post("/", s.handleSend)
		r.Get("/conversation/{userID1}/{userID2}", s.handleConversation)
		r.Patch("/conversation/{userID1}/{userID2}/read", s.handleMarkConversationRead)
		r.Get("/unread/{userID}", s.handleUnreadCount)
		r.Get("/conversations/{userID}", s.handleConversations)
		r.Patch("/{messageID}/read", s.handleMarkRead)
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
