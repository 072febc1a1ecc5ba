package errx

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// WrapPostgres maps pgx errors to the unified Error type.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return New(KindNotFound, "postgres", err)
	}
	e := New(KindUnavailable, "postgres", err)
	e.Message = PostgresErrorMessage
	return e
}
