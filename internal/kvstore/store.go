// Package kvstore provides the keyed text stores that hold persisted session
// state. Values are opaque strings; callers own the encoding.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/vocalforge/internal/config"
)

var (
	// ErrNotFound is returned by Get for an unknown key.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned by Set when a value is larger than the
	// store accepts.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is a keyed text store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the store selected by cfg.Driver and applies the value quota.
// conn is only consulted by the nats driver.
func Open(ctx context.Context, cfg config.StorageConfig, conn *nats.Conn, log *slog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "memory":
		s = NewMemory()
	case "sqlite":
		s, err = OpenSQLite(ctx, cfg.Path)
	case "nats":
		if conn == nil {
			return nil, errors.New("nats storage requires a bus connection")
		}
		js, jsErr := conn.JetStream()
		if jsErr != nil {
			return nil, fmt.Errorf("open nats store: %w", jsErr)
		}
		s, err = OpenJetStream(js, cfg.Bucket, conn.MaxPayload())
	case "redis":
		s, err = OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	log.Info("text store opened", slog.String("driver", cfg.Driver), slog.Int("max_value_bytes", cfg.MaxValueBytes))
	return WithQuota(s, cfg.MaxValueBytes), nil
}
