// Package api exposes the admin HTTP surface and the MCP server. The HTTP
// side is read-mostly: health, status, and listings, plus a force-reset for
// stuck sessions. Everything except /health sits behind bearer auth.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ibrakm/morocco-trend-automator/internal/health"
	"github.com/ibrakm/morocco-trend-automator/internal/session"
	"github.com/ibrakm/morocco-trend-automator/internal/storage"
)

// AppDeps holds dependencies for the admin HTTP handler.
type AppDeps struct {
	Sessions *session.Store
	Store    *storage.Store
	Health   *health.Tracker
	Token    string
}

// NewAppHandler returns the admin API. GET /health is unauthenticated so
// process supervisors can probe it; the rest requires the admin token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/status", handleStatus(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Delete("/sessions/{userID}", handleResetSession(deps))
		r.Get("/posts", handleListPosts(deps))
		r.Get("/errors", handleListErrors(deps))
	})

	return r
}

// BearerAuth rejects requests whose Authorization header does not carry the
// expected token. Comparison is constant-time.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if !deps.Health.Snapshot().Healthy {
			status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := deps.Store.CountPosts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count posts: %v", err)
			return
		}
		failures, err := deps.Store.CountErrors()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count journal entries: %v", err)
			return
		}
		applied, err := deps.Store.AppliedMigrations()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read schema version: %v", err)
			return
		}
		schema := 0
		if len(applied) > 0 {
			schema = applied[len(applied)-1]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"health":          deps.Health.Snapshot(),
			"active_sessions": deps.Sessions.Len(),
			"published_posts": posts,
			"journal_errors":  failures,
			"schema_version":  schema,
		})
	}
}

// sessionSummary is the wire view of a session; drafts and research payloads
// stay out of the admin API.
type sessionSummary struct {
	UserID    int64     `json:"user_id"`
	Stage     string    `json:"stage"`
	Topic     string    `json:"topic,omitempty"`
	HasDraft  bool      `json:"has_draft"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := deps.Sessions.All()
		out := make([]sessionSummary, len(sessions))
		for i, s := range sessions {
			out[i] = sessionSummary{
				UserID:    s.UserID,
				Stage:     string(s.Stage),
				Topic:     s.Topic,
				HasDraft:  s.Draft != nil,
				LastError: s.LastError,
				UpdatedAt: s.UpdatedAt,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// handleResetSession force-resets a stuck session. The session is reset in
// place rather than deleted so its epoch keeps advancing and any in-flight
// result for the old cycle is discarded on commit.
func handleResetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id: %v", err)
			return
		}

		if _, ok := deps.Sessions.Get(userID); !ok {
			httpError(w, http.StatusNotFound, "not_found", "no session for user %d", userID)
			return
		}
		if _, err := deps.Sessions.Mutate(userID, func(s *session.Session) error {
			s.Reset()
			return nil
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
	}
}

func handleListPosts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		posts, err := deps.Store.ListPosts(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list posts: %v", err)
			return
		}
		if posts == nil {
			posts = []storage.Post{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(posts)
	}
}

func handleListErrors(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Store.RecentErrors(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list errors: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.ErrorEntry{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
