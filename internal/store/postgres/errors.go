package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "lens-backend/pkg/errors"
)

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.GetAppError(err) != nil {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return apperrors.NewForbiddenError(op + " not permitted").WithCause(err)
		case pgErr.Code == "22P02":
			// Malformed id: no row can match it.
			return apperrors.NewNotFoundError("row").WithCause(err)
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			return apperrors.NewValidationRejectedError(pgErr.Message, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "57"):
			return apperrors.NewStoreUnavailableError(op, err)
		}
		return apperrors.NewInternalError(op+" failed", err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFoundError("row").WithCause(err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	return apperrors.NewInternalError(op+" failed", err)
}
