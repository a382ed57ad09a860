package handler

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusconnect/internal/metrics"
	"github.com/hitoshi/campusconnect/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler

	// サービス
	AuthService         AuthServiceInterface
	RelationshipService RelationshipServiceInterface
	FeedService         FeedServiceInterface
	AccountService      AccountServiceInterface
	AIChatService       AIChatServiceInterface
	PostService         PostServiceInterface
	CommentService      CommentServiceInterface
	MessageService      MessageServiceInterface
	Realtime            RealtimeServer

	UploadMaxSize int64
	// UploadDir はプロフィール画像の保存先。空なら /uploads を公開しない。
	UploadDir string

	// HealthCheck はDBなど依存先の疎通を確認する。nilなら常に正常。
	HealthCheck func(ctx context.Context) error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → OptionalAuth → RateLimit(General) → RequireAuth
//
// レート制限は認証済みならアカウント単位、未認証なら接続元IP単位。
// 関係を変更するルートと認証フォームには専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	relHandler := NewRelationshipHandler(deps.RelationshipService, deps.FeedService)
	profileHandler := NewProfileHandler(deps.AccountService, deps.AIChatService, deps.UploadMaxSize)
	postHandler := NewPostHandler(deps.PostService)
	commentHandler := NewCommentHandler(deps.CommentService)
	messageHandler := NewMessageHandler(deps.MessageService, deps.Realtime, deps.CORSAllowedOrigin)

	strict := deps.RateLimiter.RelationshipMiddleware()

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.UploadDir != "" {
		r.Get("/uploads/{name}", uploadsHandler(deps.UploadDir))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.TokenVerifier, logger))

		// リアルタイム接続は長寿命のためAPI全般のレート制限から外す
		r.With(middleware.RequireAuth).Get("/ws", messageHandler.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// --- 認証不要のルート ---
			r.Route("/api/auth", func(r chi.Router) {
				r.With(strict).Post("/register", authHandler.Register)
				r.With(strict).Post("/login", authHandler.Login)
				r.Get("/verify-email/{token}", authHandler.VerifyEmail)
				r.With(strict).Post("/forgot-password", authHandler.ForgotPassword)
				r.With(strict).Post("/reset-password/{token}", authHandler.ResetPassword)
			})

			r.Route("/api/users", func(r chi.Router) {
				r.Get("/profile/{id}", profileHandler.GetProfile)
				r.Get("/search", profileHandler.Search)
				relHandler.PublicRoutes(r)

				// --- 認証が必要なルート ---
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAuth)
					r.Get("/selfProfile", profileHandler.GetSelfProfile)
					r.Put("/profile", profileHandler.UpdateProfile)
					r.Post("/uploadProfilePic", profileHandler.UploadProfilePic)
					r.Post("/aiChat", profileHandler.AIChat)
					relHandler.ReadRoutes(r)
					r.With(strict).Group(relHandler.MutationRoutes)
				})
			})

			r.Route("/api/posts", func(r chi.Router) {
				r.With(middleware.RequireAuth).Group(postHandler.ProtectedRoutes)
				postHandler.PublicRoutes(r)
			})

			r.Route("/api/comments", func(r chi.Router) {
				r.With(middleware.RequireAuth).Group(commentHandler.ProtectedRoutes)
				commentHandler.PublicRoutes(r)
			})

			r.With(middleware.RequireAuth).Get("/api/messages/{peerId}", messageHandler.History)
		})
	})

	return r
}

// healthHandler は依存先の疎通を確認し、結果をJSONで返す。
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	}
}

// uploadsHandler は保存済みのプロフィール画像を返す。サブディレクトリは参照させない。
func uploadsHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}
