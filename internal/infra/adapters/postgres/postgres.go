package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

func NewPostgres(ctx context.Context, url string) (*sqlx.DB, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(dbCtx, "pgx", url)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to postgres: %w", domain.ErrStoreUnavailable, err)
	}

	if err = db.PingContext(dbCtx); err != nil {
		return nil, fmt.Errorf("%w: ping postgres: %w", domain.ErrStoreUnavailable, err)
	}

	slog.Info("connected to postgres")

	return db, nil
}
