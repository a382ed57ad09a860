package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusconnect/internal/account"
	"github.com/hitoshi/campusconnect/internal/aichat"
	"github.com/hitoshi/campusconnect/internal/middleware"
	"github.com/hitoshi/campusconnect/internal/model"
)

// defaultUploadMaxSize はプロフィール画像の既定の上限サイズ。
const defaultUploadMaxSize = 5 << 20

// AccountServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	GetProfile(ctx context.Context, id string) (*account.Profile, error)
	GetSelfProfile(ctx context.Context, actorID string) (*account.Profile, error)
	UpdateProfile(ctx context.Context, actorID string, u model.ProfileUpdate) (*model.Account, error)
	Search(ctx context.Context, query string) ([]model.AccountSummary, error)
	UploadProfilePic(ctx context.Context, actorID string, r io.Reader) (string, error)
}

// AIChatServiceInterface はAIチャットのサービスインターフェース。
type AIChatServiceInterface interface {
	Suggest(ctx context.Context, actorID, message string, chatlog []aichat.ChatEntry) (string, error)
}

// ProfileHandler はプロフィール・検索・画像アップロード・AIチャットのHTTPハンドラー。
type ProfileHandler struct {
	accounts      AccountServiceInterface
	aiChat        AIChatServiceInterface
	uploadMaxSize int64
}

// NewProfileHandler はProfileHandlerを生成する。uploadMaxSize が0以下なら既定値を使う。
func NewProfileHandler(accounts AccountServiceInterface, aiChat AIChatServiceInterface, uploadMaxSize int64) *ProfileHandler {
	if uploadMaxSize <= 0 {
		uploadMaxSize = defaultUploadMaxSize
	}
	return &ProfileHandler{accounts: accounts, aiChat: aiChat, uploadMaxSize: uploadMaxSize}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID           string                 `json:"id"`
	Username     string                 `json:"username"`
	Name         string                 `json:"name"`
	Email        string                 `json:"email,omitempty"`
	ProfilePic   string                 `json:"profilePic"`
	Gender       string                 `json:"gender"`
	FollowPolicy string                 `json:"followPolicy"`
	Posts        []postResponse         `json:"posts"`
	Followers    []model.AccountSummary `json:"followers"`
	Following    []model.AccountSummary `json:"following"`
}

func toProfileResponse(p *account.Profile) profileResponse {
	return profileResponse{
		ID:           p.ID,
		Username:     p.Username,
		Name:         p.Name,
		Email:        p.Email,
		ProfilePic:   p.ProfilePic,
		Gender:       string(p.Gender),
		FollowPolicy: string(p.FollowPolicy),
		Posts:        toPostResponses(p.Posts),
		Followers:    nonNil(p.Followers),
		Following:    nonNil(p.Following),
	}
}

type updateProfileRequest struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Gender       string `json:"gender"`
	ProfilePic   string `json:"profilePic"`
	FollowPolicy string `json:"followPolicy"`
}

type aiChatRequest struct {
	Message string             `json:"message"`
	Chatlog []aichat.ChatEntry `json:"chatlog"`
}

// GetProfile は公開プロフィールを返す。
// GET /api/users/profile/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// GetSelfProfile は本人のプロフィールを返す。
// GET /api/users/selfProfile
func (h *ProfileHandler) GetSelfProfile(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	p, err := h.accounts.GetSelfProfile(r.Context(), actorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UpdateProfile は本人のプロフィールを更新する。
// PUT /api/users/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := h.accounts.UpdateProfile(r.Context(), actorID, model.ProfileUpdate{
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		Gender:       model.Gender(req.Gender),
		ProfilePic:   req.ProfilePic,
		FollowPolicy: model.FollowPolicy(req.FollowPolicy),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message": "Profile updated successfully",
		"user":    toAccountResponse(acct),
	})
}

// Search はユーザー名の部分一致で検索する。
// GET /api/users/search?username=
func (h *ProfileHandler) Search(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.Search(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"users": nonNil(users)})
}

// UploadProfilePic はmultipartの profilePic を保存し、プロフィール画像に設定する。
// POST /api/users/uploadProfilePic
func (h *ProfileHandler) UploadProfilePic(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxSize)
	file, _, err := r.FormFile("profilePic")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewValidationError("Profile picture is too large"))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("profilePic file is required"))
		return
	}
	defer file.Close()

	name, err := h.accounts.UploadProfilePic(r.Context(), actorID, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message":    "Profile picture uploaded successfully",
		"profilePic": name,
	})
}

// AIChat は会話履歴から返信候補を生成する。
// POST /api/users/aiChat
func (h *ProfileHandler) AIChat(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req aiChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	text, err := h.aiChat.Suggest(r.Context(), actorID, req.Message, req.Chatlog)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"response": text})
}
