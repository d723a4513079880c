package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/streamd/internal/platform/api"
	"github.com/example/streamd/internal/platform/auth"
	"github.com/example/streamd/services/stats/internal/service"
	"github.com/example/streamd/services/stats/internal/store"
	"github.com/example/streamd/services/stats/internal/watchstats"
)

const testUser = "6f1c2a9e-3b7d-4c1e-9a52-0d8e4f7b1c23"

// setupReq builds a request with chi URL params and optional user_id in context.
func setupReq(method, url string, params map[string]string, userID string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func newService() *service.Service {
	src := store.NewInMemoryStatsSource()
	completed := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	count := 12
	format := "TV"
	src.AddAnime("anime-1", 2024, "Action")
	src.AddEntry(testUser, store.MemoryWatchEntry{RawWatchEntry: store.RawWatchEntry{
		AnimeID: "anime-1", Status: "COMPLETED", CompletedAt: &completed,
		EpisodeCount: &count, Format: &format,
	}})
	return &service.Service{
		Source: src,
		Now:    func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) api.APIError {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestGetUserStats(t *testing.T) {
	handler := GetUserStats(newService())
	req := setupReq(http.MethodGet, "/v1/users/"+testUser+"/stats", map[string]string{"user_id": testUser}, "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var stats watchstats.UserStats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.CurrentYear != 2024 || stats.TotalAnime != 1 || stats.TotalEpisodes != 12 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.WatchTimeMinutes != 288 {
		t.Fatalf("expected 288 minutes, got %d", stats.WatchTimeMinutes)
	}
	if len(stats.TopGenres) != 1 || stats.TopGenres[0].Name != "Action" {
		t.Fatalf("unexpected genres: %+v", stats.TopGenres)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", cc)
	}
}

func TestGetUserStats_JSONShape(t *testing.T) {
	handler := GetUserStats(newService())
	req := setupReq(http.MethodGet, "/", map[string]string{"user_id": testUser}, "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	body := rr.Body.String()
	for _, key := range []string{`"current_year"`, `"watch_time_minutes"`, `"yearly_data"`, `"rating_distribution"`, `"average_rating":null`} {
		if !strings.Contains(body, key) {
			t.Fatalf("expected %s in body, got %s", key, body)
		}
	}
}

func TestGetUserStats_InvalidID(t *testing.T) {
	handler := GetUserStats(newService())
	req := setupReq(http.MethodGet, "/v1/users/abc/stats", map[string]string{"user_id": "abc"}, "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != service.ReasonInvalidUserID {
		t.Fatalf("expected %s, got %q", service.ReasonInvalidUserID, e.Code)
	}
}

func TestGetUserStats_MissingID(t *testing.T) {
	handler := GetUserStats(newService())
	req := setupReq(http.MethodGet, "/v1/users//stats", nil, "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetUserStats_UnknownUser(t *testing.T) {
	other := "00000000-0000-0000-0000-000000000001"
	handler := GetUserStats(newService())
	req := setupReq(http.MethodGet, "/", map[string]string{"user_id": other}, "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != service.ReasonUserNotFound {
		t.Fatalf("expected %s, got %q", service.ReasonUserNotFound, e.Code)
	}
}

func TestGetMyStats(t *testing.T) {
	handler := GetMyStats(newService())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodGet, "/v1/me/stats", nil, testUser))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodGet, "/v1/me/stats", nil, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rr.Code)
	}
}

type stubService struct {
	err error
}

func (s stubService) UserStats(context.Context, string) (watchstats.UserStats, error) {
	return watchstats.UserStats{}, s.err
}

func (s stubService) Flush(context.Context) error { return s.err }

func TestFlushCache(t *testing.T) {
	rr := httptest.NewRecorder()
	FlushCache(stubService{}).ServeHTTP(rr, setupReq(http.MethodPost, "/v1/admin/stats/cache/flush", nil, testUser))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"flushed":true`) {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestWriteGRPCError_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"invalid", status.Error(codes.InvalidArgument, "bad"), http.StatusBadRequest},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no"), http.StatusUnauthorized},
		{"denied", status.Error(codes.PermissionDenied, "no"), http.StatusForbidden},
		{"not found", status.Error(codes.NotFound, "gone"), http.StatusNotFound},
		{"exhausted", status.Error(codes.ResourceExhausted, "slow down"), http.StatusTooManyRequests},
		{"unavailable", status.Error(codes.Unavailable, "down"), http.StatusServiceUnavailable},
		{"internal", status.Error(codes.Internal, "oops"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			FlushCache(stubService{err: tt.err}).ServeHTTP(rr, setupReq(http.MethodPost, "/", nil, ""))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestWriteGRPCError_HidesPlainInternalMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	writeGRPCError(rr, "rid-1", status.Error(codes.Internal, "pq: relation does not exist"))

	e := decodeError(t, rr)
	if e.Code != "INTERNAL" || strings.Contains(e.Message, "relation") {
		t.Fatalf("expected generic internal error, got %+v", e)
	}
	if e.RequestID != "rid-1" {
		t.Fatalf("expected request id, got %q", e.RequestID)
	}
}
