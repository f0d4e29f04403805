package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

// Config параметры подключения к SurrealDB
type Config struct {
	URL            string        `mapstructure:"url" validate:"required"`
	Namespace      string        `mapstructure:"namespace" validate:"required"`
	Database       string        `mapstructure:"database" validate:"required"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		URL:            "ws://localhost:8000/rpc",
		Namespace:      "eventsync",
		Database:       "events",
		ConnectTimeout: 5 * time.Second,
	}
}

// Connect открывает websocket соединение с кодеком surrealcbor,
// авторизуется и выбирает namespace и базу
func Connect(parentCtx context.Context, cfg *Config, log logger.Logger) (*surrealdb.DB, error) {
	if log == nil {
		log = logger.NewNop()
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)

	// surrealcbor корректно кодирует time.Time и RecordID
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			db.Close(context.Background())
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(context.Background())
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	log.Info("Connected to SurrealDB",
		"url", u.Redacted(),
		"namespace", cfg.Namespace,
		"database", cfg.Database,
	)

	return db, nil
}
