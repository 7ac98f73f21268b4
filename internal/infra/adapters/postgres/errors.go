package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

// classify относит ошибку Postgres к недоступности хранилища или к ошибке записи
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		netErr     net.Error
		connectErr *pgconn.ConnectError
	)

	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreWriteFailed, err)
	}
}
