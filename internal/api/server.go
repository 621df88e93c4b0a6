package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/orgchat/orgchat/internal/config"
	"github.com/orgchat/orgchat/internal/identity"
	"github.com/orgchat/orgchat/internal/server"
	"github.com/orgchat/orgchat/internal/store"
)

type App struct {
	log            *zap.Logger
	repo           store.Repository
	counters       store.CounterStore
	mux            *http.Server
	cs             *server.ChatServer
	verifier       *identity.Verifier
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *zap.Logger, cs *server.ChatServer, repo store.Repository, counters store.CounterStore, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		repo:           repo,
		counters:       counters,
		cs:             cs,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if len(cfg.SigningKey) > 0 {
		s.verifier = identity.NewVerifier(cfg.SigningKey)
	}

	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("POST /api/users", s.createUser)
	mux.HandleFunc("GET /api/hierarchy", s.getHierarchy)
	mux.HandleFunc("GET /api/health", s.health)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Info("starting server", zap.String("addr", s.mux.Addr))
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
