// Package app はサブコマンドごとの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/campusconnect/internal/account"
	"github.com/hitoshi/campusconnect/internal/aichat"
	"github.com/hitoshi/campusconnect/internal/auth"
	"github.com/hitoshi/campusconnect/internal/comment"
	"github.com/hitoshi/campusconnect/internal/config"
	"github.com/hitoshi/campusconnect/internal/database"
	"github.com/hitoshi/campusconnect/internal/feed"
	"github.com/hitoshi/campusconnect/internal/handler"
	"github.com/hitoshi/campusconnect/internal/logger"
	"github.com/hitoshi/campusconnect/internal/message"
	"github.com/hitoshi/campusconnect/internal/metrics"
	"github.com/hitoshi/campusconnect/internal/middleware"
	"github.com/hitoshi/campusconnect/internal/notify"
	"github.com/hitoshi/campusconnect/internal/post"
	"github.com/hitoshi/campusconnect/internal/realtime"
	"github.com/hitoshi/campusconnect/internal/relationship"
	"github.com/hitoshi/campusconnect/internal/repository"
	"github.com/hitoshi/campusconnect/internal/security"
	"github.com/hitoshi/campusconnect/internal/worker/cleanup"
)

// aiMaxResponseSize は補完サーバーのレスポンス本文の上限。
const aiMaxResponseSize = 1 << 20

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck("http://localhost:" + port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, 10*time.Second)
	if err != nil {
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// newMetricsRegistry はプロセス・ランタイムのコレクタを登録したレジストリとアプリケーションのコレクタを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newPublisher は NATS_URL が設定されていれば接続し、未設定なら何もしないPublisherを返す。
// 返り値の関数で接続を閉じる。
func newPublisher(cfg *config.Config) (notify.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		slog.Info("NATS_URL is not set; relationship events will not be published")
		return notify.Nop{}, func() {}, nil
	}
	pub, err := notify.Connect(cfg.NATSURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to NATS")
	return pub, pub.Close, nil
}

// newAIGate は REDIS_URL が設定されていればRedisで、未設定ならプロセス内でAIチャットの間隔を制御する。
func newAIGate(cfg *config.Config) (aichat.Gate, func(), error) {
	if cfg.RedisURL == "" {
		return aichat.NewLocalGate(cfg.AIRequestInterval), func() {}, nil
	}
	client, err := aichat.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up redis gate: %w", err)
	}
	slog.Info("connected to redis")
	return aichat.NewRedisGate(client, cfg.AIRequestInterval), func() { client.Close() }, nil
}

// newCompleter は AI_SERVER_ADDR を検証し、SSRF防止付きクライアントのCompleterを返す。
func newCompleter(cfg *config.Config, guard security.SSRFGuardService) (aichat.Completer, error) {
	if cfg.AIServerAddr == "" {
		slog.Warn("AI_SERVER_ADDR is not set; aiChat requests will fail")
		return aichat.Unconfigured{}, nil
	}
	if err := guard.ValidateURL(cfg.AIServerAddr); err != nil {
		return nil, fmt.Errorf("invalid AI_SERVER_ADDR: %w", err)
	}
	return aichat.NewHTTPCompleter(guard.NewSafeClient(cfg.AITimeout, aiMaxResponseSize), cfg.AIServerAddr), nil
}

// rateLimiterConfig は req/min 単位の設定を RateLimiterConfig（req/sec）に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.RelationshipRate = rate.Limit(float64(cfg.RateLimitRelationship) / 60.0)
	rl.RelationshipBurst = cfg.RateLimitRelationship
	return rl
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg, collector := newMetricsRegistry()

	// 3. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)

	// 4. セキュリティサービスと外部接続の初期化
	sanitizer := security.NewContentSanitizer()
	ssrfGuard := security.NewSSRFGuard()

	publisher, closePublisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	gate, closeGate, err := newAIGate(cfg)
	if err != nil {
		return err
	}
	defer closeGate()

	completer, err := newCompleter(cfg, ssrfGuard)
	if err != nil {
		return err
	}

	pictures, err := account.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	// 5. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(accountRepo, tokens, auth.NewLogMailer(slog.Default()),
		auth.ServiceConfig{BaseURL: cfg.BaseURL})
	relService := relationship.NewService(accountRepo, publisher, collector, slog.Default())
	feedService := feed.NewService(accountRepo, postRepo)
	accountService := account.NewService(accountRepo, postRepo, pictures)
	aiService := aichat.NewService(accountRepo, gate, completer, cfg.AIRequestInterval, collector)
	postService := post.NewService(postRepo, accountRepo, sanitizer)
	commentService := comment.NewService(commentRepo, postRepo, sanitizer)

	// 6. リアルタイム配信
	registry := realtime.NewRegistry(collector)
	relay := message.NewRelay(messageRepo, accountRepo, registry, sanitizer, collector, slog.Default())
	dispatcher := realtime.NewDispatcher(registry, relay, slog.Default())

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),

		AuthService:         authService,
		RelationshipService: relService,
		FeedService:         feedService,
		AccountService:      accountService,
		AIChatService:       aiService,
		PostService:         postService,
		CommentService:      commentService,
		MessageService:      relay,
		Realtime:            dispatcher,

		UploadMaxSize: cfg.UploadMaxSize,
		UploadDir:     cfg.UploadDir,
		HealthCheck:   db.PingContext,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		dispatcher.Close()
		registry.Close()
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown はハイジャック済みのWebSocket接続を待たないため、先に閉じる
	dispatcher.Close()
	registry.Close()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れ再設定トークンのクリーンアップを定期実行し、メトリクスを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクスとクリーンアップジョブの初期化
	reg, collector := newMetricsRegistry()
	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresAccountRepo(db), slog.Default(), collector)
	cleanupJob.Retention = cfg.ResetTokenRetention

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("reset_token_retention", cfg.ResetTokenRetention),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	res, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(res.FromVersion)),
		slog.Uint64("to_version", uint64(res.ToVersion)),
		slog.Bool("applied", res.Applied()),
	)
	return nil
}

// runHealthcheck は baseURL の /health にリクエストを送り、200以外ならエラーを返す。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
