package database

import (
	"errors"
	"fmt"

	"novel-fork/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// isUniqueViolation сообщает, нарушено ли ограничение уникальности.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// wrapErr оборачивает ошибку запроса, сохраняя доменные ошибки как есть.
func wrapErr(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
