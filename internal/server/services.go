package server

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vipinj/lockbox/internal/server/handlers/ws"
	"github.com/vipinj/lockbox/internal/server/identity"
	"github.com/vipinj/lockbox/internal/server/relpath"
	"github.com/vipinj/lockbox/internal/server/store"
	"github.com/vipinj/lockbox/internal/server/updater"
	"github.com/vipinj/lockbox/internal/server/versions"
)

type Services struct {
	Store       *store.Store
	Identity    *identity.Service
	RelPath     *relpath.Service
	Versions    *versions.Service
	Queue       *updater.Queue
	Engine      *updater.Engine
	DeviceQueue *updater.DeviceQueue
}

func NewServices(config *Config, db *sqlx.DB, hub *ws.WebsocketHub) (*Services, error) {
	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	queue := updater.NewQueue(st)
	engine := updater.New(st, queue, updater.WithNotifier(hub))

	return &Services{
		Store:       st,
		Identity:    identity.NewService(st),
		RelPath:     relpath.NewService(st),
		Versions:    versions.NewService(st, queue),
		Queue:       queue,
		Engine:      engine,
		DeviceQueue: updater.NewDeviceQueue(st),
	}, nil
}

func (s *Services) Start(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if err := s.Engine.Start(ctx, workers); err != nil {
		return fmt.Errorf("start updater: %w", err)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	if err := s.Engine.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop updater: %w", err)
	}
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
