package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusconnect/internal/comment"
	"github.com/hitoshi/campusconnect/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	Create(ctx context.Context, authorID string, in comment.Input) (*model.Comment, error)
	Get(ctx context.Context, id string) (*model.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)
	Update(ctx context.Context, actorID, id, content string) (*model.Comment, error)
	Delete(ctx context.Context, actorID, id string) error
	React(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Comment, error)
}

// CommentHandler はコメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

type createCommentRequest struct {
	Content   string `json:"content"`
	Anonymous bool   `json:"anonymous"`
	PostID    string `json:"postId"`
	ParentID  string `json:"parentId"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

// Create はコメントを作成する。
// POST /api/comments/create
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req createCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), actorID, comment.Input(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"message": "Comment created successfully",
		"comment": toCommentResponse(c),
	})
}

// Get はコメントを返す。
// GET /api/comments/{id}
func (h *CommentHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"comment": toCommentResponse(c)})
}

// ListByPost は投稿に直接付いたコメントを古い順に返す。
// GET /api/comments/post/{postId}
func (h *CommentHandler) ListByPost(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListByPost(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, envelope{"comments": out})
}

// Update はコメント本文を更新する。所有者のみ。
// PUT /api/comments/{id}
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), actorID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message": "Comment updated successfully",
		"comment": toCommentResponse(c),
	})
}

// Delete はコメントを削除する。所有者のみ。
// DELETE /api/comments/{id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Comment deleted successfully"})
}

func (h *CommentHandler) react(kind model.ReactionKind, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		c, err := h.service.React(r.Context(), actorID, chi.URLParam(r, "id"), kind)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{"message": message, "comment": toCommentResponse(c)})
	}
}

// PublicRoutes は認証不要のルートを登録する。
func (h *CommentHandler) PublicRoutes(r chi.Router) {
	r.Get("/post/{postId}", h.ListByPost)
	r.Get("/{id}", h.Get)
}

// ProtectedRoutes は認証が必要なルートを登録する。
func (h *CommentHandler) ProtectedRoutes(r chi.Router) {
	r.Post("/create", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Put("/{id}/like", h.react(model.ReactionLike, "Comment liked successfully"))
	r.Put("/{id}/dislike", h.react(model.ReactionDislike, "Comment disliked successfully"))
}
