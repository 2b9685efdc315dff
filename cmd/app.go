package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"clouddrive/internal/config"
	"clouddrive/internal/database"
	"clouddrive/internal/logs"
	"clouddrive/internal/mailer"
	"clouddrive/internal/notify"
	"clouddrive/internal/storage"
)

// bootstrap загружает конфигурацию и настраивает логгер. Возвращаемая
// функция закрывает лог-файл.
func bootstrap() (*config.Config, func(), error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading config")
	}

	closeLog, err := logs.Init(logs.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "initializing logger")
	}
	return cfg, func() { closeLog() }, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.ConnectWithRetry(ctx, cfg.Database, 5, 5*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	return db, nil
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Backend == "s3" {
		s, err := storage.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, errors.Wrap(err, "creating S3 storage")
		}
		return s, nil
	}

	s, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return nil, errors.Wrap(err, "creating local storage")
	}
	return s, nil
}

func newDispatcher(cfg config.MailConfig) (*notify.MailDispatcher, error) {
	backend, err := mailer.NewBackend(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating mail backend")
	}
	return notify.NewMailDispatcher(backend, cfg.From), nil
}
