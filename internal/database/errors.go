package database

import (
	"errors"

	"github.com/TemirB/shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

var constraintFields = map[string]struct{ field, msg string }{
	"users_username_key":      {"username", "a user with that username already exists"},
	"users_email_key":         {"email", "email must be unique"},
	"products_price_check":    {"price", "the value must not be less than zero"},
	"products_discount_check": {"discount", "must be between 0 and 100"},
	"order_products_key":      {"products", "duplicate product in order"},
}

// translate maps driver errors onto domain errors; anything unknown is
// returned as is.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgCheckViolation:
		if f, ok := constraintFields[pgErr.ConstraintName]; ok {
			return domain.NewValidationError(f.field, f.msg)
		}
		return domain.NewValidationError("non_field_errors", pgErr.Message)
	case pgForeignKeyViolation:
		return domain.ErrNotFound
	}
	return err
}
