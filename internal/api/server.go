// Package api provides the REST API of the feed service: accounts, category
// preferences and live feed sessions.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
	"github.com/RobinCoderZhao/optimist-daily/internal/metrics"
	"github.com/RobinCoderZhao/optimist-daily/internal/prefs"
	"github.com/RobinCoderZhao/optimist-daily/internal/session"
	"github.com/RobinCoderZhao/optimist-daily/internal/user"
)

const defaultSessionTTL = 30 * time.Minute

// Server holds the dependencies for the API.
type Server struct {
	userStore *user.Store
	prefStore prefs.Store
	pipeline  session.Pipeline
	providers []feed.ProviderID
	sessions  *sessionRegistry
	jwtSecret []byte
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSessionTTL sets how long an unused feed session is kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.sessions.ttl = ttl
		}
	}
}

// WithProviders lists the active providers reported by /health.
func WithProviders(ids []feed.ProviderID) Option {
	return func(s *Server) { s.providers = ids }
}

// WithClock overrides the time source for tokens and session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
		s.sessions.now = now
	}
}

// NewServer creates a new API Server instance.
func NewServer(uStore *user.Store, pStore prefs.Store, pipeline session.Pipeline, jwtSecret string, opts ...Option) *Server {
	s := &Server{
		userStore: uStore,
		prefStore: pStore,
		pipeline:  pipeline,
		sessions:  newSessionRegistry(defaultSessionTTL),
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("POST /api/auth/register", s.handleRegister())
	mux.HandleFunc("POST /api/auth/login", s.handleLogin())
	mux.HandleFunc("GET /health", s.handleHealth())
	mux.Handle("GET /metrics", metrics.Handler())

	// User
	mux.Handle("GET /api/users/me", s.requireAuth(s.handleGetMe()))

	// Onboarding
	mux.Handle("GET /api/categories", s.requireAuth(s.handleCategories()))
	mux.Handle("GET /api/preferences", s.requireAuth(s.handleGetPreferences()))
	mux.Handle("PUT /api/preferences", s.requireAuth(s.handlePutPreferences()))

	// Feed sessions
	mux.Handle("POST /api/feed/sessions", s.requireAuth(s.handleCreateSession()))
	mux.Handle("GET /api/feed/sessions/{id}", s.requireAuth(s.handleGetSession()))
	mux.Handle("PATCH /api/feed/sessions/{id}", s.requireAuth(s.handleUpdateSession()))
	mux.Handle("DELETE /api/feed/sessions/{id}", s.requireAuth(s.handleDeleteSession()))

	return metrics.Middleware(mux)
}

// RunReaper closes idle feed sessions until ctx is done.
func (s *Server) RunReaper(ctx context.Context) {
	interval := s.sessions.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.reap(); n > 0 {
				s.logger.Info("closed idle feed sessions", "count", n)
			}
		}
	}
}

// Close ends every open feed session.
func (s *Server) Close() {
	s.sessions.closeAll()
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := s.providers
		if providers == nil {
			providers = []feed.ProviderID{}
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"providers": providers,
			"sessions":  s.sessions.len(),
		})
	}
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
