package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/streamd/internal/platform/api"
	"github.com/example/streamd/internal/platform/auth"
	"github.com/example/streamd/internal/platform/httpserver"
	"github.com/example/streamd/services/stats/internal/watchstats"
)

// StatsService is the part of service.Service the HTTP layer uses.
type StatsService interface {
	UserStats(ctx context.Context, userID string) (watchstats.UserStats, error)
	Flush(ctx context.Context) error
}

type flushResponse struct {
	Flushed bool `json:"flushed"`
}

// GetUserStats returns the public statistics of the user in the path.
func GetUserStats(svc StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
		if userID == "" {
			api.BadRequest(w, "MISSING_ID", "user_id is required", rid, nil)
			return
		}
		writeStats(w, r, svc, rid, userID)
	}
}

// GetMyStats returns the statistics of the authenticated user.
func GetMyStats(svc StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}
		writeStats(w, r, svc, rid, userID)
	}
}

// FlushCache drops every cached statistics entry.
func FlushCache(svc StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if err := svc.Flush(r.Context()); err != nil {
			writeGRPCError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, flushResponse{Flushed: true})
	}
}

func writeStats(w http.ResponseWriter, r *http.Request, svc StatsService, rid, userID string) {
	stats, err := svc.UserStats(r.Context(), userID)
	if err != nil {
		writeGRPCError(w, rid, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	api.WriteJSON(w, http.StatusOK, stats)
}
