package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphummel/rackline/internal/attachments"
	"github.com/tphummel/rackline/internal/cache"
	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/discovery"
	"github.com/tphummel/rackline/internal/events"
	"github.com/tphummel/rackline/internal/handlers"
	"github.com/tphummel/rackline/internal/metrics"
	"github.com/tphummel/rackline/internal/middleware"
	"github.com/tphummel/rackline/internal/service"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Token           string
	AdminToken      string
	DBPath          string
	Port            string
	LogLevel        slog.Level
	AttachmentsPath string
	DHCPURL         string
	DHCPToken       string
	NATSURL         string
	RedisAddr       string
	StatsCacheTTL   time.Duration
}

// loadConfig reads service configuration from environment variables and
// applies defaults. It returns an error when a required variable is absent
// or a value does not parse.
func loadConfig() (Config, error) {
	cfg := Config{
		Token:           os.Getenv("API_TOKEN"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		DBPath:          os.Getenv("DB_PATH"),
		Port:            os.Getenv("PORT"),
		AttachmentsPath: os.Getenv("ATTACHMENTS_PATH"),
		DHCPURL:         os.Getenv("DHCP_URL"),
		DHCPToken:       os.Getenv("DHCP_TOKEN"),
		NATSURL:         os.Getenv("NATS_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		StatsCacheTTL:   time.Minute,
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("API_TOKEN environment variable is required")
	}
	if cfg.AdminToken == cfg.Token {
		return cfg, fmt.Errorf("ADMIN_TOKEN must differ from API_TOKEN")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./rackline.db"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return cfg, fmt.Errorf("invalid LOG_LEVEL %q", v)
		}
	}
	if v := os.Getenv("STATS_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return cfg, fmt.Errorf("invalid STATS_CACHE_TTL %q", v)
		}
		cfg.StatsCacheTTL = ttl
	}
	return cfg, nil
}

// buildOptions connects the optional collaborators named in cfg. Unreachable
// event and cache backends are logged and skipped. The returned cleanup
// closes everything that was opened.
func buildOptions(ctx context.Context, cfg Config, logger *slog.Logger) (service.Options, func(), error) {
	opts := service.Options{Logger: logger, Metrics: metrics.Ledger{}}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := attachments.Open(cfg.AttachmentsPath)
	if err != nil {
		return opts, cleanup, err
	}
	opts.Attachments = store
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("attachment store close error", "error", err)
		}
	})
	if cfg.AttachmentsPath == "" {
		logger.Warn("ATTACHMENTS_PATH not set, defect files are kept in memory")
	}

	if cfg.DHCPURL != "" {
		opts.Discovery = discovery.New(cfg.DHCPURL, cfg.DHCPToken, 5*time.Second)
	}

	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("history events disabled", "error", err)
		} else {
			opts.Publisher = pub
			closers = append(closers, pub.Close)
		}
	}

	if cfg.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c, err := cache.Dial(dialCtx, cfg.RedisAddr, cfg.StatsCacheTTL)
		cancel()
		if err != nil {
			logger.Warn("stats cache disabled", "error", err)
		} else {
			opts.Cache = c
			closers = append(closers, func() { c.Close() })
		}
	}

	return opts, cleanup, nil
}

// newHandler assembles the full HTTP handler: API routes, docs, metrics and
// request logging.
func newHandler(svc *service.Service, database *db.DB, cfg Config, logger *slog.Logger) http.Handler {
	h := &handlers.Handler{Service: svc, Version: version, Commit: commit}

	mux := http.NewServeMux()
	h.Register(mux, cfg.Token, cfg.AdminToken)

	// Prometheus metrics, no auth
	reg := prometheus.NewRegistry()
	metrics.Register(reg, database)
	mux.Handle("GET /metrics", metrics.Handler(reg))

	skip := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	return middleware.RequestLogger(logger, skip, mux)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	opts, cleanup, err := buildOptions(context.Background(), cfg, logger)
	if err != nil {
		cleanup()
		log.Fatalf("failed to initialise: %v", err)
	}
	svc := service.New(database, opts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           newHandler(svc, database, cfg, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port, "version", version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	cleanup()
	if err := database.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	logger.Info("server stopped")
}
