package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/cache"
	"github.com/matheus3301/nestsync/internal/logging"
	"github.com/matheus3301/nestsync/internal/scheduler"
	intsync "github.com/matheus3301/nestsync/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler serves the daemon control API.
type Handler struct {
	profile  string
	manager  *intsync.Manager
	monitor  *activity.Monitor
	sched    *scheduler.Scheduler
	cache    *cache.Cache
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	validate *validator.Validate
	started  time.Time
}

// Deps are the components the control API drives.
type Deps struct {
	Profile   string
	Manager   *intsync.Manager
	Monitor   *activity.Monitor
	Scheduler *scheduler.Scheduler
	Cache     *cache.Cache
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// NewHandler creates the control API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	return &Handler{
		profile:  d.Profile,
		manager:  d.Manager,
		monitor:  d.Monitor,
		sched:    d.Scheduler,
		cache:    d.Cache,
		gatherer: gatherer,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		started:  time.Now().UTC(),
	}
}

// Routes returns the HTTP handler.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/status", h.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/activity", func(r chi.Router) {
		r.Post("/touch", h.handleTouch)
		r.Post("/visibility", h.handleVisibility)
	})

	r.Route("/conversation", func(r chi.Router) {
		r.Post("/open", h.handleOpen)
		r.Get("/", h.handleConversation)
		r.Post("/messages", h.handleSend)
		r.Post("/messages/{id}/retry", h.handleRetry)
		r.Post("/messages/{id}/read", h.handleMarkRead)
		r.Post("/read", h.handleMarkConversationRead)
		r.Post("/refresh", h.handleRefreshConversation)
	})

	r.Route("/inbox", func(r chi.Router) {
		r.Get("/", h.handleInbox)
		r.Post("/refresh", h.handleRefreshInbox)
		r.Post("/{id}/read", h.handleInboxRead)
	})

	return r
}

func (h *Handler) status() Status {
	st := Status{
		Profile:      h.profile,
		UserID:       h.manager.Owner(),
		PID:          os.Getpid(),
		Started:      h.started,
		Activity:     h.monitor.Current(),
		LastActivity: h.monitor.LastActivity(),
		Timers:       h.manager.Polling(),
		Scheduler:    h.sched.Stats(),
		CacheEntries: h.cache.Len(),
	}
	if e, err := h.manager.Active(); err == nil {
		st.Conversation = e.Key()
	}
	return st
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Error{Error: err.Error()})
}
