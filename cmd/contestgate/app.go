package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/contestgate/internal/db"
	"github.com/nkiryanov/contestgate/internal/handlers"
	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/repository/postgres"
	"github.com/nkiryanov/contestgate/internal/service/auth"
	"github.com/nkiryanov/contestgate/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/contestgate/internal/service/codes"
	"github.com/nkiryanov/contestgate/internal/service/mailer"
	"github.com/nkiryanov/contestgate/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	sweeper *codes.Sweeper
	pool    *pgxpool.Pool
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Check options that need no db first
	hasher, err := user.NewBcryptHasher(c.BcryptCost)
	if err != nil {
		return nil, err
	}
	tokenCfg := tokenmanager.Config{
		AccessSecretKey:  c.AccessSecretKey,
		RefreshSecretKey: c.RefreshSecretKey,
		AccessTTL:        c.AccessTokenTTL,
		RefreshTTL:       c.RefreshTokenTTL,
	}
	if _, err := tokenmanager.New(tokenCfg, nil); err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN, l)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenCfg, storage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	userService, err := user.NewService(hasher, storage)
	if err != nil {
		pool.Close()
		return nil, err
	}
	registry, err := codes.New(codes.Config{
		AuthCodeTTL:     c.AuthCodeTTL,
		RoleCodeTTL:     c.RoleCodeTTL,
		MaxAttempts:     c.CodeMaxAttempts,
		MaxRoleAttempts: c.RoleMaxAttempts,
		AttemptWindow:   c.CodeAttemptWindow,
	}, storage, l)
	if err != nil {
		pool.Close()
		return nil, err
	}
	m := mailer.NewLogMailer(l, c.Environment == logger.EnvDevelopment)

	authService, err := auth.NewService(storage, userService, tokenManager, registry, m, l)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(authService, l),
		sweeper:    codes.NewSweeper(registry, c.CodeSweepInterval),
		pool:       pool,
		logger:     l,
	}, nil
}

// Run starts http server and code sweeper and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
