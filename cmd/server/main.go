package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/orgchat/orgchat/internal/api"
	"github.com/orgchat/orgchat/internal/config"
	"github.com/orgchat/orgchat/internal/observ"
	"github.com/orgchat/orgchat/internal/server"
	"github.com/orgchat/orgchat/internal/stats"
	"github.com/orgchat/orgchat/internal/store"
)

const (
	// Startup store connectivity is retried a fixed number of times with a
	// fixed backoff; exhaustion is fatal. The process never serves traffic
	// half-initialized.
	startupRetries = 5
	startupBackoff = 2 * time.Second
	pingTimeout    = 5 * time.Second
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	redisURL       string
	signingKey     string
	env            string
	logLevel       string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&redisURL, "redis-url", "redis://localhost:6379", "redis connection URL")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded identity token signing key (empty trusts connect frames)")
	flag.StringVar(&env, "env", "development", "deployment environment")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger, err := observ.NewLogger(env, logLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.NewConfig(addr, dsn, redisURL, signingKey, env, logLevel, allowedOrigins)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	repo, err := store.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer repo.Close()

	if err := waitForStore(logger, "postgres", repo.Ping); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	if err := repo.EnsureSchema(ctx); err != nil {
		cancel()
		logger.Fatal("schema bootstrap", zap.Error(err))
	}
	cancel()

	counters, err := store.NewRedisCounters(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis open", zap.Error(err))
	}
	defer counters.Close()

	if err := waitForStore(logger, "redis", counters.Ping); err != nil {
		logger.Fatal("redis unreachable", zap.Error(err))
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, repo, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server", zap.Error(err))
	}

	srv := api.NewApp(mux, logger, chatServer, repo, counters, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server", zap.Error(err))
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatal("HTTP server shutdown", zap.Error(err))
	}

	logger.Info("shutting down chat server")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatal("chat server shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func waitForStore(logger *zap.Logger, name string, ping func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= startupRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		lastErr = ping(ctx)
		cancel()
		if lastErr == nil {
			return nil
		}

		logger.Warn("store ping failed",
			zap.String("store", name),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < startupRetries {
			time.Sleep(startupBackoff)
		}
	}

	return lastErr
}
