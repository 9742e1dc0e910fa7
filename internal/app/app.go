package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/liveinfo/internal/config"
	"github.com/hitoshi/liveinfo/internal/database"
	"github.com/hitoshi/liveinfo/internal/handler"
	"github.com/hitoshi/liveinfo/internal/logger"
	"github.com/hitoshi/liveinfo/internal/metrics"
	"github.com/hitoshi/liveinfo/internal/middleware"
	"github.com/hitoshi/liveinfo/internal/refresh"
	"github.com/hitoshi/liveinfo/internal/security"
	"github.com/hitoshi/liveinfo/internal/version"
)

// Env は初期化済みの設定とロガー。
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	closer io.Closer
}

// Close はログファイルを閉じる。
func (e *Env) Close() error {
	return e.closer.Close()
}

// Init はアプリケーションの初期化を行う。
// 環境変数（と.env）からConfigを読み込み、設定に従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*Env, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってロガーを作り直す
	l, closer, err := logger.New(logger.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		Dir:    cfg.LogDir,
		Writer: w,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	slog.SetDefault(l)

	return &Env{Config: cfg, Logger: l, closer: closer}, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	env, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer env.Close()

	env.Logger.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", version.Version),
		slog.String("port", env.Config.ServerPort),
		slog.String("store_backend", env.Config.StoreBackend),
	)

	switch cmd {
	case CommandFetch:
		return runFetch(context.Background(), env)
	case CommandMigrate:
		return runMigrate(env)
	default:
		return runServe(env)
	}
}

// server はHTTPサーバーとその終了処理。
type server struct {
	httpServer  *http.Server
	rateLimiter *middleware.RateLimiter
	store       io.Closer
}

func (s *server) close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.store.Close()
}

// newServer は全依存関係をワイヤリングしたHTTPサーバーを構築する。
func newServer(ctx context.Context, env *Env) (*server, error) {
	cfg := env.Config
	if err := cfg.RequirePlatform(); err != nil {
		return nil, err
	}

	// 1. 永続ストア
	store, storeCloser, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. 上流プラットフォーム
	p, err := buildPlatforms(ctx, cfg, newPlatformDeps(env, store, collector))
	if err != nil {
		storeCloser.Close()
		return nil, err
	}

	// 4. ルーターの構築
	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPerMinute), env.Logger)
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:           env.Logger,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RateLimiter:      limiter,
		Metrics:          collector,
		Sources:          p.sources,
		MetricsHandler:   metrics.Handler(reg),
		Version:          version.Version,
	})

	return &server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.FetchTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		rateLimiter: limiter,
		store:       storeCloser,
	}, nil
}

func newPlatformDeps(env *Env, store refresh.Store, collector metrics.MetricsCollector) platformDeps {
	cfg := env.Config
	guard := security.NewSSRFGuard(cfg.AllowPrivateUpstreams)
	return platformDeps{
		store:      store,
		httpClient: guard.NewSafeClient(cfg.FetchTimeout, cfg.FetchMaxSize),
		metrics:    collector,
		logger:     env.Logger,
		text:       security.NewContentSanitizer(),
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(env *Env) error {
	srv, err := newServer(context.Background(), env)
	if err != nil {
		return err
	}
	defer srv.close()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		env.Logger.Info("API server starting",
			slog.String("addr", srv.httpServer.Addr),
		)
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	env.Logger.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	env.Logger.Info("API server stopped gracefully")
	return nil
}

// runFetch は設定済みの全エンティティを1回ずつフェッチし、成功した値を永続ストアへ書き込む。
// 1つでも失敗した場合はエラーを返す。
func runFetch(ctx context.Context, env *Env) error {
	cfg := env.Config
	if err := cfg.RequirePlatform(); err != nil {
		return err
	}

	store, storeCloser, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer storeCloser.Close()

	p, err := buildPlatforms(ctx, cfg, newPlatformDeps(env, store, metrics.NopCollector{}))
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(p.refreshers))
	for id := range p.refreshers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var failed []string
	for _, id := range ids {
		src, err := p.refreshers[id](ctx)
		if err != nil || src != refresh.SourceFetched {
			failed = append(failed, id)
			env.Logger.Error("fetch failed", slog.String("entity", id))
			continue
		}
		env.Logger.Info("fetch completed", slog.String("entity", id))
	}

	if len(failed) > 0 {
		return fmt.Errorf("fetch failed for %v", failed)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(env *Env) error {
	cfg := env.Config
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	env.Logger.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	env.Logger.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(v)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
