package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/campusconnect/internal/account"
	"github.com/hitoshi/campusconnect/internal/aichat"
	"github.com/hitoshi/campusconnect/internal/auth"
	"github.com/hitoshi/campusconnect/internal/comment"
	"github.com/hitoshi/campusconnect/internal/middleware"
	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/post"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.Account, error)
	verifyEmailFn    func(ctx context.Context, token string) error
	loginFn          func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	forgotPasswordFn func(ctx context.Context, email string) error
	resetPasswordFn  func(ctx context.Context, token, password string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.Account, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.Account{}, nil
}

func (m *mockAuthService) VerifyEmail(ctx context.Context, token string) error {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &auth.LoginResult{}, nil
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, token, password string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, password)
	}
	return nil
}

// mockRelationshipService は呼び出された操作を記録する。
type mockRelationshipService struct {
	calls []string
	err   error
	lists map[string][]model.AccountSummary
}

func (m *mockRelationshipService) record(op, actorID, targetID string) error {
	m.calls = append(m.calls, op+":"+actorID+"->"+targetID)
	return m.err
}

func (m *mockRelationshipService) Follow(_ context.Context, a, t string) error {
	return m.record("follow", a, t)
}
func (m *mockRelationshipService) Unfollow(_ context.Context, a, t string) error {
	return m.record("unfollow", a, t)
}
func (m *mockRelationshipService) SendFollowRequest(_ context.Context, a, t string) error {
	return m.record("sendFollowRequest", a, t)
}
func (m *mockRelationshipService) AcceptFollowRequest(_ context.Context, a, t string) error {
	return m.record("acceptFollowRequest", a, t)
}
func (m *mockRelationshipService) RejectFollowRequest(_ context.Context, a, t string) error {
	return m.record("rejectFollowRequest", a, t)
}
func (m *mockRelationshipService) CancelFollowRequest(_ context.Context, a, t string) error {
	return m.record("cancelFollowRequest", a, t)
}
func (m *mockRelationshipService) RemoveFollower(_ context.Context, a, t string) error {
	return m.record("removeFollower", a, t)
}
func (m *mockRelationshipService) Block(_ context.Context, a, t string) error {
	return m.record("block", a, t)
}
func (m *mockRelationshipService) Unblock(_ context.Context, a, t string) error {
	return m.record("unblock", a, t)
}
func (m *mockRelationshipService) Scratch(_ context.Context, a, t string) error {
	return m.record("scratch", a, t)
}
func (m *mockRelationshipService) Unscratch(_ context.Context, a, t string) error {
	return m.record("unscratch", a, t)
}

func (m *mockRelationshipService) list(key, id string) ([]model.AccountSummary, error) {
	m.calls = append(m.calls, key+":"+id)
	if m.err != nil {
		return nil, m.err
	}
	return m.lists[key], nil
}

func (m *mockRelationshipService) Followers(_ context.Context, id string) ([]model.AccountSummary, error) {
	return m.list("followers", id)
}
func (m *mockRelationshipService) Following(_ context.Context, id string) ([]model.AccountSummary, error) {
	return m.list("following", id)
}
func (m *mockRelationshipService) FollowRequests(_ context.Context, id string) ([]model.AccountSummary, error) {
	return m.list("followRequests", id)
}
func (m *mockRelationshipService) Scratchers(_ context.Context, id string) ([]model.AccountSummary, error) {
	return m.list("scratchers", id)
}
func (m *mockRelationshipService) Scratching(_ context.Context, id string) ([]model.AccountSummary, error) {
	return m.list("scratching", id)
}
func (m *mockRelationshipService) Blocked(_ context.Context, id string) ([]model.AccountSummary, error) {
	return m.list("blocked", id)
}

type mockFeedService struct {
	getFeedFn func(ctx context.Context, actorID string) ([]model.FeedEntry, error)
}

func (m *mockFeedService) GetFeed(ctx context.Context, actorID string) ([]model.FeedEntry, error) {
	if m.getFeedFn != nil {
		return m.getFeedFn(ctx, actorID)
	}
	return []model.FeedEntry{}, nil
}

type mockAccountService struct {
	getProfileFn     func(ctx context.Context, id string) (*account.Profile, error)
	getSelfProfileFn func(ctx context.Context, actorID string) (*account.Profile, error)
	updateProfileFn  func(ctx context.Context, actorID string, u model.ProfileUpdate) (*model.Account, error)
	searchFn         func(ctx context.Context, query string) ([]model.AccountSummary, error)
	uploadFn         func(ctx context.Context, actorID string, r io.Reader) (string, error)
}

func (m *mockAccountService) GetProfile(ctx context.Context, id string) (*account.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, id)
	}
	return &account.Profile{ID: id}, nil
}

func (m *mockAccountService) GetSelfProfile(ctx context.Context, actorID string) (*account.Profile, error) {
	if m.getSelfProfileFn != nil {
		return m.getSelfProfileFn(ctx, actorID)
	}
	return &account.Profile{ID: actorID}, nil
}

func (m *mockAccountService) UpdateProfile(ctx context.Context, actorID string, u model.ProfileUpdate) (*model.Account, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, actorID, u)
	}
	return &model.Account{ID: actorID}, nil
}

func (m *mockAccountService) Search(ctx context.Context, query string) ([]model.AccountSummary, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
}

func (m *mockAccountService) UploadProfilePic(ctx context.Context, actorID string, r io.Reader) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, actorID, r)
	}
	return "pic.png", nil
}

type mockAIChatService struct {
	suggestFn func(ctx context.Context, actorID, message string, chatlog []aichat.ChatEntry) (string, error)
}

func (m *mockAIChatService) Suggest(ctx context.Context, actorID, message string, chatlog []aichat.ChatEntry) (string, error) {
	if m.suggestFn != nil {
		return m.suggestFn(ctx, actorID, message, chatlog)
	}
	return "", nil
}

type mockPostService struct {
	createFn     func(ctx context.Context, authorID string, in post.Input) (*model.Post, error)
	getFn        func(ctx context.Context, id string) (*post.View, error)
	listByUserFn func(ctx context.Context, userID string) ([]*model.Post, error)
	updateFn     func(ctx context.Context, actorID, id string, in post.Input) (*model.Post, error)
	deleteFn     func(ctx context.Context, actorID, id string) error
	reactFn      func(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Post, error)
}

func (m *mockPostService) Create(ctx context.Context, authorID string, in post.Input) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, authorID, in)
	}
	return &model.Post{}, nil
}

func (m *mockPostService) Get(ctx context.Context, id string) (*post.View, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &post.View{Post: &model.Post{ID: id}}, nil
}

func (m *mockPostService) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockPostService) Update(ctx context.Context, actorID, id string, in post.Input) (*model.Post, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actorID, id, in)
	}
	return &model.Post{ID: id}, nil
}

func (m *mockPostService) Delete(ctx context.Context, actorID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actorID, id)
	}
	return nil
}

func (m *mockPostService) React(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Post, error) {
	if m.reactFn != nil {
		return m.reactFn(ctx, actorID, id, kind)
	}
	return &model.Post{ID: id}, nil
}

type mockCommentService struct {
	createFn     func(ctx context.Context, authorID string, in comment.Input) (*model.Comment, error)
	listByPostFn func(ctx context.Context, postID string) ([]*model.Comment, error)
	updateFn     func(ctx context.Context, actorID, id, content string) (*model.Comment, error)
	deleteFn     func(ctx context.Context, actorID, id string) error
	reactFn      func(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Comment, error)
}

func (m *mockCommentService) Create(ctx context.Context, authorID string, in comment.Input) (*model.Comment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, authorID, in)
	}
	return &model.Comment{}, nil
}

func (m *mockCommentService) Get(_ context.Context, id string) (*model.Comment, error) {
	return &model.Comment{ID: id}, nil
}

func (m *mockCommentService) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	if m.listByPostFn != nil {
		return m.listByPostFn(ctx, postID)
	}
	return nil, nil
}

func (m *mockCommentService) Update(ctx context.Context, actorID, id, content string) (*model.Comment, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actorID, id, content)
	}
	return &model.Comment{ID: id, Content: content}, nil
}

func (m *mockCommentService) Delete(ctx context.Context, actorID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actorID, id)
	}
	return nil
}

func (m *mockCommentService) React(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Comment, error) {
	if m.reactFn != nil {
		return m.reactFn(ctx, actorID, id, kind)
	}
	return &model.Comment{ID: id}, nil
}

type mockMessageService struct {
	historyFn func(ctx context.Context, actorID, peerID string) ([]*model.Message, error)
}

func (m *mockMessageService) History(ctx context.Context, actorID, peerID string) ([]*model.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, actorID, peerID)
	}
	return nil, nil
}

// echoRealtime は接続の subject を1フレーム送って閉じる。
type echoRealtime struct{}

func (echoRealtime) Serve(_ context.Context, subject string, ws *websocket.Conn) {
	_ = ws.WriteMessage(websocket.TextMessage, []byte(subject))
	_ = ws.Close()
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにアカウントIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody はレスポンスボディをmapとして読み込む。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return result
}

// assertError はエラーレスポンスのステータスとコードを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["error"] != code {
		t.Errorf("error = %v, want %s", body["error"], code)
	}
	if body["message"] == "" || body["message"] == nil {
		t.Error("error response must carry a message")
	}
}
