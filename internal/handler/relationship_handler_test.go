package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusconnect/internal/model"
)

// relationshipRouter は関係ハンドラーのルートを認証済みとして組み立てる。
func relationshipRouter(svc *mockRelationshipService, feed FeedServiceInterface, actorID string) http.Handler {
	h := NewRelationshipHandler(svc, feed)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if actorID != "" {
				req = withUserID(req, actorID)
			}
			next.ServeHTTP(w, req)
		})
	})
	h.PublicRoutes(r)
	h.ReadRoutes(r)
	h.MutationRoutes(r)
	return r
}

func TestRelationshipHandler_MutationsCallService(t *testing.T) {
	tests := []struct {
		path     string
		wantCall string
		wantMsg  string
	}{
		{"/follow/bob", "follow:alice->bob", "User followed successfully"},
		{"/unfollow/bob", "unfollow:alice->bob", "User unfollowed successfully"},
		{"/sendFollowRequest/bob", "sendFollowRequest:alice->bob", "Follow request sent successfully"},
		{"/acceptFollowRequest/bob", "acceptFollowRequest:alice->bob", "Follow request accepted successfully"},
		{"/rejectFollowRequest/bob", "rejectFollowRequest:alice->bob", "Follow request rejected successfully"},
		{"/cancelFollowRequest/bob", "cancelFollowRequest:alice->bob", "Follow request cancelled successfully"},
		{"/removeFollower/bob", "removeFollower:alice->bob", "Follower removed successfully"},
		{"/block/bob", "block:alice->bob", "User blocked successfully"},
		{"/unblock/bob", "unblock:alice->bob", "User unblocked successfully"},
		{"/scratch/bob", "scratch:alice->bob", "User scratched successfully"},
		{"/unscratch/bob", "unscratch:alice->bob", "User unscratched successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			svc := &mockRelationshipService{}
			w := httptest.NewRecorder()
			relationshipRouter(svc, &mockFeedService{}, "alice").ServeHTTP(w, httptest.NewRequest(http.MethodPut, tt.path, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if len(svc.calls) != 1 || svc.calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", svc.calls, tt.wantCall)
			}
			if msg := decodeBody(t, w)["message"]; msg != tt.wantMsg {
				t.Errorf("message = %v, want %s", msg, tt.wantMsg)
			}
		})
	}
}

func TestRelationshipHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", model.NewAlreadyFollowingError(), http.StatusConflict, model.ErrCodeAlreadyFollowing},
		{"not found", model.NewAccountNotFoundError("bob"), http.StatusNotFound, model.ErrCodeAccountNotFound},
		{"no request", model.NewNoSuchRequestError(), http.StatusNotFound, model.ErrCodeNoSuchRequest},
		{"blocked", model.NewBlockedError(), http.StatusForbidden, model.ErrCodeBlocked},
		{"self", model.NewSelfRelationError(), http.StatusBadRequest, model.ErrCodeSelfRelation},
		{"internal", errors.New("db down at 10.0.0.1"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRelationshipService{err: tt.err}
			w := httptest.NewRecorder()
			relationshipRouter(svc, &mockFeedService{}, "alice").ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/follow/bob", nil))

			assertError(t, w, tt.status, tt.code)
		})
	}
}

func TestRelationshipHandler_MutationRequiresAuth(t *testing.T) {
	svc := &mockRelationshipService{}
	w := httptest.NewRecorder()
	relationshipRouter(svc, &mockFeedService{}, "").ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/follow/bob", nil))

	assertError(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
	if len(svc.calls) != 0 {
		t.Errorf("service should not be called, got %v", svc.calls)
	}
}

func TestRelationshipHandler_Lists(t *testing.T) {
	svc := &mockRelationshipService{lists: map[string][]model.AccountSummary{
		"followers":      {{ID: "c", Username: "carol"}},
		"followRequests": {{ID: "d", Username: "dave"}},
	}}
	router := relationshipRouter(svc, &mockFeedService{}, "alice")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/followers/bob", nil))
	body := decodeBody(t, w)
	followers, _ := body["followers"].([]any)
	if len(followers) != 1 {
		t.Fatalf("followers = %v", body["followers"])
	}
	if first, _ := followers[0].(map[string]any); first["username"] != "carol" {
		t.Errorf("first follower = %v", followers[0])
	}

	// 自分宛てのリクエスト一覧は認証済みIDで引く
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/followRequests", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.calls[len(svc.calls)-1] != "followRequests:alice" {
		t.Errorf("calls = %v", svc.calls)
	}

	// 空の一覧はnullではなく空配列
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scratchers/bob", nil))
	if got, ok := decodeBody(t, w)["scratchers"].([]any); !ok || len(got) != 0 {
		t.Errorf("scratchers = %v, want []", got)
	}
}

func TestRelationshipHandler_Feed(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	feed := &mockFeedService{
		getFeedFn: func(ctx context.Context, actorID string) ([]model.FeedEntry, error) {
			if actorID != "alice" {
				t.Errorf("actorID = %q", actorID)
			}
			return []model.FeedEntry{{
				Post:   model.Post{ID: "p1", AuthorID: "bob", Title: "Hi", Content: "Hello", CreatedAt: created},
				Author: model.AccountSummary{ID: "bob", Username: "bob"},
			}}, nil
		},
	}

	w := httptest.NewRecorder()
	relationshipRouter(&mockRelationshipService{}, feed, "alice").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entries, _ := decodeBody(t, w)["feed"].([]any)
	if len(entries) != 1 {
		t.Fatalf("feed = %v", entries)
	}
	entry := entries[0].(map[string]any)
	if entry["id"] != "p1" || entry["title"] != "Hi" {
		t.Errorf("entry = %v", entry)
	}
	if author, _ := entry["author"].(map[string]any); author["username"] != "bob" {
		t.Errorf("author = %v", entry["author"])
	}
}

func TestRelationshipHandler_FeedActorNotFound(t *testing.T) {
	feed := &mockFeedService{
		getFeedFn: func(ctx context.Context, actorID string) ([]model.FeedEntry, error) {
			return nil, model.NewActorNotFoundError(actorID)
		},
	}

	w := httptest.NewRecorder()
	relationshipRouter(&mockRelationshipService{}, feed, "ghost").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))

	assertError(t, w, http.StatusNotFound, model.ErrCodeActorNotFound)
}
