package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

// NewClient подключается к Redis и проверяет соединение
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("%w: connect to redis: %w", domain.ErrStoreUnavailable, err)
	}

	slog.Info("connected to redis", slog.String("addr", cfg.Addr))

	return client, nil
}

// classify относит ошибку Redis к недоступности хранилища или к ошибке записи
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error

	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreWriteFailed, err)
	}
}
