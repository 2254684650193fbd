package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/vidbridge/vidbridge/config"
	"github.com/vidbridge/vidbridge/logging"
)

type App struct {
	Server *http.Server

	S3    *s3.Client    // nil unless the remote sink is enabled
	Redis *redis.Client // nil unless the redis token backend is selected

	Config config.Config

	Services *Services
	Logger   logging.Logger
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger := logging.NewSlogLogger(logging.CreateAppLogger(cfg.Env))

	app := &App{
		Config: cfg,
		Logger: appLogger,
	}

	if cfg.S3Config.Enabled {
		client, err := initS3(*cfg.S3Config)
		if err != nil {
			return nil, err
		}
		app.S3 = client
	}

	if cfg.TokenConfig.Backend == "redis" {
		app.Redis = initRedis(*cfg.RedisConfig)
	}

	services, err := BuildServices(app)
	if err != nil {
		return nil, err
	}
	app.Services = services

	return app, nil
}

func (a *App) Run() error {
	a.Server = &http.Server{
		Addr:              a.Config.ServiceConfig.HTTPAddr,
		Handler:           a.Services.HTTPHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.Logger.Info("server listening", "addr", a.Config.ServiceConfig.HTTPAddr,
		"uploads_dir", a.Config.UploadsConfig.Dir, "s3", a.Config.S3Config.Enabled)

	if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func initS3(cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: "",
		DB:       0,
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("starting graceful shutdown")

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Error("http server shutdown error", "error", err)
		}
	}

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			a.Logger.Error("services shutdown error", "error", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}

	a.Logger.Info("graceful shutdown complete")
	return nil
}
