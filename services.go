package main

import (
	"context"

	"github.com/vidbridge/vidbridge/handlers"
	"github.com/vidbridge/vidbridge/logging"
	"github.com/vidbridge/vidbridge/registry"
	"github.com/vidbridge/vidbridge/services"
	"github.com/vidbridge/vidbridge/store"
)

type Stores struct {
	tokens store.TokenStore
	local  *store.LocalDiskStorageImpl
	remote store.ObjectStorage
}

type Services struct {
	Registry registry.Registry
	Uploads  services.UploadManager
	Router   services.Router

	Stores *Stores

	Hub         *handlers.Hub
	HTTPHandler *handlers.HTTPHandler

	logger logging.Logger
}

type Shutdowner interface {
	Shutdown(context.Context) error
}

func BuildServices(app *App) (*Services, error) {
	cfg := app.Config

	local, err := store.NewLocalDiskStorageImpl(cfg.UploadsConfig.Dir, app.Logger)
	if err != nil {
		return nil, err
	}

	var tokens store.TokenStore
	if app.Redis != nil {
		tokens = store.NewRedisTokenStoreImpl(app.Redis, cfg.TokenConfig.TTL, app.Logger)
	} else {
		tokens = store.NewMemoryTokenStoreImpl(cfg.TokenConfig.TTL, cfg.TokenConfig.CleanupInterval, app.Logger)
	}

	var remote store.ObjectStorage
	if app.S3 != nil {
		remote = store.NewS3ObjectStorageImpl(app.S3, cfg.S3Config.Bucket, cfg.S3Config.PresignTTL, app.Logger)
	}

	reg := registry.NewRegistryImpl()

	uploads := services.NewUploadManagerImpl(
		local,
		tokens,
		cfg.ServiceConfig.PublicBaseURL,
		cfg.UploadsConfig.IdleTTL,
		cfg.UploadsConfig.JanitorInterval,
		app.Logger,
	)

	hub := handlers.NewHub(reg, uploads, cfg.ServiceConfig.CORSOrigin, app.Logger)
	router := services.NewRouterImpl(reg, hub, cfg.ServiceConfig.RecipientDevice, app.Logger)
	hub.SetRouter(router)

	httpHandler := handlers.NewHTTPHandler(
		local,
		remote,
		tokens,
		hub,
		cfg.ServiceConfig.PublicBaseURL,
		cfg.ServiceConfig.CORSOrigin,
		app.Logger,
	)

	return &Services{
		Registry: reg,
		Uploads:  uploads,
		Router:   router,

		Stores: &Stores{
			tokens: tokens,
			local:  local,
			remote: remote,
		},

		Hub:         hub,
		HTTPHandler: httpHandler,

		logger: app.Logger,
	}, nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down services")

	shutdownIfPossible := func(name string, v any) {
		if sh, ok := v.(Shutdowner); ok {
			if err := sh.Shutdown(ctx); err != nil {
				s.logger.Error("shutdown error", "component", name, "error", err)
			}
		}
	}

	shutdownIfPossible("hub", s.Hub)
	shutdownIfPossible("uploads", s.Uploads)
	shutdownIfPossible("tokens", s.Stores.tokens)

	return nil
}
