package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/rx3lixir/event-sync/pkg/resilience"
)

// SQLSTATE кодов, после которых запись имеет смысл повторить
var conflictCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// classify оборачивает конфликты PostgreSQL в resilience.ErrConflict,
// а нарушение уникального ключа в dualwrite.ErrAlreadyExists
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", dualwrite.ErrAlreadyExists, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := conflictCodes[pgErr.Code]; ok {
			return resilience.Conflict(err)
		}
	}
	return err
}

// IsUniqueViolation сообщает о нарушении уникального ключа (23505)
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
