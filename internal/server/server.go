package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vipinj/lockbox/internal/db"
	"github.com/vipinj/lockbox/internal/server/handlers/ws"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config   *Config
	server   *http.Server
	hub      *ws.WebsocketHub
	services *Services
}

func New(config *Config) (*Server, error) {
	database, err := db.NewSqliteDB(db.WithPath(config.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	hub := ws.NewHub()
	services, err := NewServices(config, database, hub)
	if err != nil {
		database.Close()
		return nil, err
	}

	return &Server{
		config:   config,
		hub:      hub,
		services: services,
		server: &http.Server{
			Addr:    config.HTTP.Addr,
			Handler: SetupRoutes(services, hub),
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("lockbox server start", "addr", s.config.HTTP.Addr)
	defer slog.Info("lockbox server stop")

	if err := s.services.Start(ctx, s.config.Workers); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := s.runHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.Stop(context.Background())
	})

	return g.Wait()
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.hub.Shutdown(shutdownCtx)

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}

	return s.services.Shutdown(shutdownCtx)
}

func (s *Server) runHTTPServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
