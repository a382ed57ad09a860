package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusconnect/internal/model"
)

// RelationshipServiceInterface は関係操作ハンドラーが必要とするサービスインターフェース。
type RelationshipServiceInterface interface {
	Follow(ctx context.Context, actorID, targetID string) error
	Unfollow(ctx context.Context, actorID, targetID string) error
	SendFollowRequest(ctx context.Context, actorID, targetID string) error
	AcceptFollowRequest(ctx context.Context, actorID, requesterID string) error
	RejectFollowRequest(ctx context.Context, actorID, requesterID string) error
	CancelFollowRequest(ctx context.Context, actorID, targetID string) error
	RemoveFollower(ctx context.Context, actorID, followerID string) error
	Block(ctx context.Context, actorID, targetID string) error
	Unblock(ctx context.Context, actorID, targetID string) error
	Scratch(ctx context.Context, actorID, targetID string) error
	Unscratch(ctx context.Context, actorID, targetID string) error

	Followers(ctx context.Context, id string) ([]model.AccountSummary, error)
	Following(ctx context.Context, id string) ([]model.AccountSummary, error)
	FollowRequests(ctx context.Context, actorID string) ([]model.AccountSummary, error)
	Scratchers(ctx context.Context, id string) ([]model.AccountSummary, error)
	Scratching(ctx context.Context, id string) ([]model.AccountSummary, error)
	Blocked(ctx context.Context, actorID string) ([]model.AccountSummary, error)
}

// FeedServiceInterface はフィード取得のサービスインターフェース。
type FeedServiceInterface interface {
	GetFeed(ctx context.Context, actorID string) ([]model.FeedEntry, error)
}

// RelationshipHandler はフォロー・スクラッチ・ブロックとフィードのHTTPハンドラー。
type RelationshipHandler struct {
	service RelationshipServiceInterface
	feed    FeedServiceInterface
}

// NewRelationshipHandler はRelationshipHandlerを生成する。
func NewRelationshipHandler(service RelationshipServiceInterface, feed FeedServiceInterface) *RelationshipHandler {
	return &RelationshipHandler{service: service, feed: feed}
}

type relationOp func(ctx context.Context, actorID, targetID string) error

// action は {id} を対象にした関係操作のハンドラーを返す。
func (h *RelationshipHandler) action(op relationOp, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		if err := op(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{"message": message})
	}
}

type relationList func(ctx context.Context, id string) ([]model.AccountSummary, error)

// list は {id} の関係一覧を key で返すハンドラーを返す。
func (h *RelationshipHandler) list(fn relationList, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeList(w, r, fn, chi.URLParam(r, "id"), key)
	}
}

// selfList は認証済みアカウント自身の関係一覧を返すハンドラーを返す。
func (h *RelationshipHandler) selfList(fn relationList, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		h.writeList(w, r, fn, actorID, key)
	}
}

func (h *RelationshipHandler) writeList(w http.ResponseWriter, r *http.Request, fn relationList, id, key string) {
	summaries, err := fn(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{key: nonNil(summaries)})
}

// Feed はフォロー中アカウントの投稿を新しい順に返す。
// GET /api/users/feed
func (h *RelationshipHandler) Feed(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	entries, err := h.feed.GetFeed(r.Context(), actorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"feed": toFeedResponses(entries)})
}

// PublicRoutes は認証不要の一覧ルートを登録する。
func (h *RelationshipHandler) PublicRoutes(r chi.Router) {
	r.Get("/followers/{id}", h.list(h.service.Followers, "followers"))
	r.Get("/following/{id}", h.list(h.service.Following, "following"))
	r.Get("/scratchers/{id}", h.list(h.service.Scratchers, "scratchers"))
	r.Get("/scratching/{id}", h.list(h.service.Scratching, "scratching"))
}

// ReadRoutes は認証が必要な参照ルートを登録する。
func (h *RelationshipHandler) ReadRoutes(r chi.Router) {
	r.Get("/feed", h.Feed)
	r.Get("/followRequests", h.selfList(h.service.FollowRequests, "followRequests"))
	r.Get("/blocked", h.selfList(h.service.Blocked, "blocked"))
}

// MutationRoutes は関係を変更するルートを登録する。
func (h *RelationshipHandler) MutationRoutes(r chi.Router) {
	r.Put("/follow/{id}", h.action(h.service.Follow, "User followed successfully"))
	r.Put("/unfollow/{id}", h.action(h.service.Unfollow, "User unfollowed successfully"))
	r.Put("/sendFollowRequest/{id}", h.action(h.service.SendFollowRequest, "Follow request sent successfully"))
	r.Put("/acceptFollowRequest/{id}", h.action(h.service.AcceptFollowRequest, "Follow request accepted successfully"))
	r.Put("/rejectFollowRequest/{id}", h.action(h.service.RejectFollowRequest, "Follow request rejected successfully"))
	r.Put("/cancelFollowRequest/{id}", h.action(h.service.CancelFollowRequest, "Follow request cancelled successfully"))
	r.Put("/removeFollower/{id}", h.action(h.service.RemoveFollower, "Follower removed successfully"))
	r.Put("/block/{id}", h.action(h.service.Block, "User blocked successfully"))
	r.Put("/unblock/{id}", h.action(h.service.Unblock, "User unblocked successfully"))
	r.Put("/scratch/{id}", h.action(h.service.Scratch, "User scratched successfully"))
	r.Put("/unscratch/{id}", h.action(h.service.Unscratch, "User unscratched successfully"))
}
