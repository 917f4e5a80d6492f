// Package app はサブコマンドの実行と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/rssroll/internal/config"
	"github.com/hitoshi/rssroll/internal/database"
	"github.com/hitoshi/rssroll/internal/feed"
	"github.com/hitoshi/rssroll/internal/handler"
	"github.com/hitoshi/rssroll/internal/item"
	"github.com/hitoshi/rssroll/internal/logger"
	"github.com/hitoshi/rssroll/internal/metrics"
	"github.com/hitoshi/rssroll/internal/repository"
	"github.com/hitoshi/rssroll/internal/rss"
	"github.com/hitoshi/rssroll/internal/security"
	"github.com/hitoshi/rssroll/internal/transport"
	fetchpkg "github.com/hitoshi/rssroll/internal/worker/fetch"
)

// Init は環境変数から設定を読み込み、コマンドラインオプションで上書きし、
// JSON構造化ログをセットアップする。ログの出力先はw。
func Init(w io.Writer, opts *Options) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。ログと出力はwに書き込む。
func Run(w io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		if isHelp(err) {
			fmt.Fprintln(w, err)
			return nil
		}
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		port := inv.Options.Port
		if port == "" {
			port = os.Getenv("SERVER_PORT")
		}
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// parse はデータベースを使わないため、ログは標準エラーに出す
	if inv.Command == CommandParse {
		logger.SetupDefault(os.Stderr, logger.LevelFromVerbosity(inv.Options.Verbosity()))
		return runParse(w, inv.Args[0], inv.Options.Verbosity())
	}

	cfg, log, err := Init(w, &inv.Options)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Debug("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("database", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch inv.Command {
	case CommandWorker:
		return runWorker(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	case CommandAdd:
		return runAdd(ctx, w, cfg, log, inv.Args[0], inv.Options.Category)
	default:
		return runPoll(ctx, cfg, log)
	}
}

// components はpoll/worker/addで共有する依存関係。
type components struct {
	db         *database.DB
	channels   *repository.ChannelRepo
	items      *repository.ItemRepo
	categories *repository.CategoryRepo
	guard      *security.Guard
	limiter    *transport.HostLimiter
	transport  *transport.Client
	registry   *prometheus.Registry
	recorder   metrics.Recorder
	scheduler  *fetchpkg.Scheduler
}

// build はDB接続を開き、巡回に必要な依存関係を組み立てる。
func build(cfg *config.Config, log *slog.Logger) (*components, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Debug("database connection established", slog.String("dialect", db.Dialect.String()))

	c := &components{
		db:         db,
		channels:   repository.NewChannelRepo(db),
		items:      repository.NewItemRepo(db),
		categories: repository.NewCategoryRepo(db),
		guard:      security.NewGuard(cfg.FetchAllowPrivate),
		registry:   prometheus.NewRegistry(),
	}
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.recorder = metrics.NewCollector(c.registry)

	if cfg.FetchHostRate > 0 {
		c.limiter = transport.NewHostLimiter(cfg.FetchHostRate, 10*time.Minute)
	}
	c.transport = transport.NewClient(c.guard.Client(cfg.FetchTimeout), transport.Options{
		UserAgent:   cfg.UserAgent,
		MaxBodySize: cfg.FetchMaxSize,
		Limiter:     c.limiter,
	})

	var sanitizer item.Sanitizer
	if cfg.SanitizeContent {
		sanitizer = security.NewSanitizer()
	}
	ingest := item.NewIngestService(c.items, c.channels, sanitizer)

	fetcher := fetchpkg.NewFetcher(c.transport, ingest, c.channels, c.recorder, log, cfg.FetchTimeout)
	c.scheduler = fetchpkg.NewScheduler(c.channels, fetcher, c.recorder, log, cfg.FetchMaxConcurrent)

	return c, nil
}

func (c *components) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	c.db.Close()
}

// runPoll は全チャンネルを1回巡回して終了する。
func runPoll(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.scheduler.RunOnce(ctx); err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}
	return nil
}

// runWorker はFETCH_INTERVALごとに巡回を繰り返す。
// ステータスサーバーで/healthと/metricsを公開し、
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(&handler.RouterDeps{
			Health:  c.db,
			Metrics: metrics.Handler(c.registry),
			Logger:  log,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("status server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	log.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-serverErr; ok {
			log.Error("status server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	// スケジューラをメインgoroutineで実行（ブロッキング）
	c.scheduler.Start(workerCtx, cfg.FetchInterval)

	log.Info("shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}

type channelJSON struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id,omitempty"`
	Title      string `json:"title"`
	Link       string `json:"link"`
}

// runAdd はinputURLからフィードを検出してチャンネルを登録し、登録内容をJSONでwに出力する。
func runAdd(ctx context.Context, w io.Writer, cfg *config.Config, log *slog.Logger, inputURL, category string) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	detector := feed.NewDetector(c.guard, c.guard.Client(cfg.FetchTimeout), cfg.UserAgent, cfg.FetchMaxSize)
	svc := feed.NewService(detector, c.transport, c.channels, c.categories, log)

	ctx, cancel := context.WithTimeout(ctx, 2*cfg.FetchTimeout)
	defer cancel()

	ch, err := svc.Register(ctx, inputURL, category)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(channelJSON{ID: ch.ID, CategoryID: ch.CategoryID, Title: ch.Title, Link: ch.Link})
}

type itemJSON struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Date        int64  `json:"date"`
	DateParsed  bool   `json:"date_parsed"`
}

type feedJSON struct {
	Version     string     `json:"version"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Link        string     `json:"link,omitempty"`
	Date        int64      `json:"date"`
	Items       []itemJSON `json:"items"`
}

// runParse はローカルのフィードファイルをパースしてJSONでwに出力する。
// Itemsは保存時と同じく文書順で出力する。
// verbosityが2以上の場合は、続けて記事ごとの一覧と件数を出力する。
func runParse(w io.Writer, path string, verbosity int) error {
	parsed, err := rss.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := feedJSON{
		Version:     parsed.Version.String(),
		Title:       parsed.Title,
		Description: parsed.Description,
		Link:        parsed.Link,
		Date:        parsed.Date.Unix(),
		Items:       make([]itemJSON, 0, len(parsed.Items)),
	}
	for i := len(parsed.Items) - 1; i >= 0; i-- {
		it := parsed.Items[i]
		out.Items = append(out.Items, itemJSON{
			Title:       it.Title,
			URL:         it.URL,
			Description: it.Description,
			Date:        it.Date.Unix(),
			DateParsed:  it.Date.Parsed,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if verbosity > 1 {
		for _, it := range parsed.Items {
			fmt.Fprintf(w, "title: %s\nurl: %s\ndate: %d\ndesc: %s\n\n", it.Title, it.URL, it.Date.Unix(), it.Description)
		}
		fmt.Fprintf(w, "%d entries\n", len(parsed.Items))
	}
	return nil
}

// runHealthcheck はワーカーの/healthにHTTPリクエストを送り、結果を返す。
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
// SQLiteのURLは認証情報を含まないためそのまま返す。
func maskDatabaseURL(url string) string {
	if dialect, _, err := database.ParseURL(url); err == nil && dialect == database.SQLite {
		return url
	}
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
