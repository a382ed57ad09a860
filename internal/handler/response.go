// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/campusconnect/internal/middleware"
	"github.com/hitoshi/campusconnect/internal/model"
)

// maxJSONBody はJSONリクエストボディの上限。
const maxJSONBody = 1 << 20

// envelope は成功レスポンスのボディ。message とデータを同じ階層に並べる。
type envelope map[string]any

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstに読み込む。失敗時は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Request body must be valid JSON"))
		return false
	}
	return true
}

// requireUserID は認証済みアカウントIDを返す。未認証の場合は401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外は内部エラーとしてログに記録し、詳細は返さない。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForCategory(apiErr.Category), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// --- レスポンスDTO ---

// postResponse は投稿のAPIレスポンス。匿名投稿では投稿者を含めない。
type postResponse struct {
	ID        string                `json:"id"`
	AuthorID  string                `json:"authorId,omitempty"`
	Author    *model.AccountSummary `json:"author,omitempty"`
	Title     string                `json:"title"`
	Content   string                `json:"content"`
	Anonymous bool                  `json:"anonymous"`
	Likes     []string              `json:"likes"`
	Dislikes  []string              `json:"dislikes"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

func toPostResponse(p *model.Post) postResponse {
	resp := postResponse{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Anonymous: p.Anonymous,
		Likes:     nonNil(p.Likes),
		Dislikes:  nonNil(p.Dislikes),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if !p.Anonymous {
		resp.AuthorID = p.AuthorID
	}
	return resp
}

func toPostResponses(posts []*model.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	return out
}

func toFeedResponses(entries []model.FeedEntry) []postResponse {
	out := make([]postResponse, 0, len(entries))
	for i := range entries {
		resp := toPostResponse(&entries[i].Post)
		author := entries[i].Author
		resp.Author = &author
		out = append(out, resp)
	}
	return out
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId,omitempty"`
	PostID    *string   `json:"postId"`
	ParentID  *string   `json:"parentId"`
	Content   string    `json:"content"`
	Anonymous bool      `json:"anonymous"`
	Replies   []string  `json:"replies"`
	Likes     []string  `json:"likes"`
	Dislikes  []string  `json:"dislikes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	resp := commentResponse{
		ID:        c.ID,
		PostID:    c.PostID,
		ParentID:  c.ParentID,
		Content:   c.Content,
		Anonymous: c.Anonymous,
		Replies:   nonNil(c.Replies),
		Likes:     nonNil(c.Likes),
		Dislikes:  nonNil(c.Dislikes),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if !c.Anonymous {
		resp.AuthorID = c.AuthorID
	}
	return resp
}

// accountResponse はプロフィール更新後のアカウント情報。
type accountResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfilePic   string `json:"profilePic"`
	Gender       string `json:"gender"`
	FollowPolicy string `json:"followPolicy"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Username:     a.Username,
		Name:         a.Name,
		Email:        a.Email,
		ProfilePic:   a.ProfilePic,
		Gender:       string(a.Gender),
		FollowPolicy: string(a.FollowPolicy),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
