// Package web serves the JSON API over the contest service.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"

	"cpcal/internal/app"
	"cpcal/internal/config"
	"cpcal/internal/export"
	appLog "cpcal/internal/log"
	"cpcal/internal/solution"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server provides the HTTP API for contests and preferences.
type Server struct {
	cfg     *config.Config
	svc     *app.Service
	limiter *rateLimiter
	router  chi.Router
}

// NewServer builds the router. ctx bounds the rate limiter's cleanup loop.
func NewServer(ctx context.Context, cfg *config.Config, svc *app.Service) *Server {
	s := &Server{cfg: cfg, svc: svc}
	if cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
		s.limiter = newRateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled")
			r.Use(s.basicAuth)
		}
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}

		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/contests", s.handleContests)
		r.Route("/contests/{id}", func(r chi.Router) {
			r.Get("/", s.handleContest)
			r.Get("/ics", s.handleContestICS)
			r.Get("/google-calendar", s.handleGoogleCalendar)
			r.Get("/solutions/search", s.handleSolutionSearch)
			r.Get("/analysis", s.handleAnalysis)
		})
		r.Get("/calendar", s.handleCalendar)
		r.Get("/platforms", s.handlePlatforms)

		r.Get("/preferences/platforms", s.handleGetPlatformPrefs)
		r.Put("/preferences/platforms", s.handlePutPlatformPrefs)

		r.Get("/bookmarks", s.handleGetBookmarks)
		r.Put("/bookmarks", s.handlePutBookmarks)
		r.Get("/bookmarks/ics", s.handleBookmarksICS)
		r.Post("/bookmarks/{id}/toggle", s.handleToggleBookmark)

		r.Get("/solutions", s.handleGetSolutions)
		r.Post("/solutions", s.handleAddSolution)

		r.Get("/notifications/settings", s.handleGetNotificationSettings)
		r.Put("/notifications/settings", s.handlePutNotificationSettings)
	})

	s.router = r
}

// Start serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("HTTP server shutdown failed", err)
		}
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// fail maps service errors to HTTP statuses. Unknown errors are logged and
// reported as 500 with msg.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, app.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, app.ErrNotLoaded.Error())
	case errors.Is(err, app.ErrContestNotFound):
		writeError(w, http.StatusNotFound, app.ErrContestNotFound.Error())
	case errors.Is(err, solution.ErrInvalidSolutionURL):
		writeError(w, http.StatusBadRequest, solution.ErrInvalidSolutionURL.Error())
	case errors.Is(err, solution.ErrMissingContestID):
		writeError(w, http.StatusBadRequest, solution.ErrMissingContestID.Error())
	case errors.Is(err, app.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, export.ErrMissingTimes):
		writeError(w, http.StatusBadRequest, export.ErrMissingTimes.Error())
	default:
		appLog.Error(msg, err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parsePlatforms reads a comma-separated platform list. A missing
// parameter returns nil (use the stored selection); "all" or an empty
// value returns an empty, non-nil list (no filter).
func parsePlatforms(r *http.Request) []string {
	q := r.URL.Query()
	if _, ok := q["platform"]; !ok {
		return nil
	}
	out := []string{}
	for _, v := range q["platform"] {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" || strings.EqualFold(p, "all") {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
