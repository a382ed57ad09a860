// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/campusconnect/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにアカウントIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// userIDHolderKey はロギングミドルウェアが認証結果を受け取るためのキー。
var userIDHolderKey = contextKey("user_id_holder")

// userIDHolder は認証ミドルウェアが検証済みのアカウントIDを書き戻す先。
type userIDHolder struct {
	id string
}

func withUserIDHolder(ctx context.Context, h *userIDHolder) context.Context {
	return context.WithValue(ctx, userIDHolderKey, h)
}

// TokenVerifier はアクセストークンを検証し、アカウントIDを返す。
// auth.TokenIssuerの部分集合として定義する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// ブラウザのWebSocketはヘッダーを付けられないため、GETに限り token クエリも受け付ける。
// 認証済みアカウントIDをリクエストコンテキストに注入し、未認証には401を返す。
func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	optional := NewOptionalAuthMiddleware(verifier, logger)
	return func(next http.Handler) http.Handler {
		return optional(RequireAuth(next))
	}
}

// NewOptionalAuthMiddleware はトークンがあれば検証してアカウントIDを注入する。
// トークンがなければ匿名のまま通し、無効なトークンには401を返す。
// loggerがnilの場合はslog.Default()を使う。
func NewOptionalAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			accountID, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if h, ok := r.Context().Value(userIDHolderKey).(*userIDHolder); ok {
				h.id = accountID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), accountID)))
		})
	}
}

// RequireAuth は認証済みでないリクエストに401を返す。
// NewOptionalAuthMiddleware の内側に配置する。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken はリクエストからトークンを取り出す。見つからない場合は空文字を返す。
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("token")
	}
	return ""
}

// UserIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにアカウントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
