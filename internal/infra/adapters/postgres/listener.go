package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

const (
	usersChannel   = "room_users"
	signalsChannel = "room_signals"
)

// listen открывает выделенное соединение и выполняет LISTEN.
// Пул sqlx для этого не подходит: уведомления приходят на конкретное соединение.
func listen(ctx context.Context, dsn, channel string) (*pgx.Conn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(connectCtx, dsn)
	if err != nil {
		return nil, classify("listen connect", err)
	}

	if _, err = conn.Exec(connectCtx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())

		return nil, classify("listen", err)
	}

	return conn, nil
}

// consume читает уведомления, пока не отменят подписку
func consume(
	ctx context.Context,
	conn *pgx.Conn,
	before func(),
	handle func(payload string),
) domain.Unsubscribe {
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		before()

		for {
			notification, err := conn.WaitForNotification(streamCtx)
			if err != nil {
				if streamCtx.Err() == nil && !errors.Is(err, context.Canceled) {
					slog.Error("wait for notification", slog.Any(constant.Error, err))
				}

				return
			}

			handle(notification.Payload)
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			cancel()
			<-done

			if err := conn.Close(context.Background()); err != nil {
				slog.Warn("close listen connection", slog.Any(constant.Error, err))
			}
		})
	}
}
