package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, authorID string, in post.Input) (*model.Post, error)
	Get(ctx context.Context, id string) (*post.View, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Post, error)
	Update(ctx context.Context, actorID, id string, in post.Input) (*model.Post, error)
	Delete(ctx context.Context, actorID, id string) error
	React(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Post, error)
}

// PostHandler は投稿のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

type postRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Anonymous bool   `json:"anonymous"`
}

// Create は投稿を作成する。
// POST /api/posts/create
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), actorID, post.Input(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"message": "Post created successfully",
		"post":    toPostResponse(p),
	})
}

// Get は投稿詳細を返す。匿名投稿では投稿者を含めない。
// GET /api/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := toPostResponse(view.Post)
	resp.Author = view.Author
	writeJSON(w, http.StatusOK, envelope{"post": resp})
}

// ListByUser はアカウントの匿名でない投稿一覧を返す。
// GET /api/posts/user/{id}
func (h *PostHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"posts": toPostResponses(posts)})
}

// Update は投稿を更新する。所有者のみ。
// PUT /api/posts/{id}
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Update(r.Context(), actorID, chi.URLParam(r, "id"), post.Input(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message": "Post updated successfully",
		"post":    toPostResponse(p),
	})
}

// Delete は投稿を削除する。所有者のみ。
// DELETE /api/posts/{id}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Post deleted successfully"})
}

// react は評価の切り替えハンドラーを返す。
func (h *PostHandler) react(kind model.ReactionKind, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		p, err := h.service.React(r.Context(), actorID, chi.URLParam(r, "id"), kind)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{"message": message, "post": toPostResponse(p)})
	}
}

// PublicRoutes は認証不要のルートを登録する。
func (h *PostHandler) PublicRoutes(r chi.Router) {
	r.Get("/user/{id}", h.ListByUser)
	r.Get("/{id}", h.Get)
}

// ProtectedRoutes は認証が必要なルートを登録する。
func (h *PostHandler) ProtectedRoutes(r chi.Router) {
	r.Post("/create", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Put("/{id}/like", h.react(model.ReactionLike, "Post liked successfully"))
	r.Put("/{id}/dislike", h.react(model.ReactionDislike, "Post disliked successfully"))
}
