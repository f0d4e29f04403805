package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier - часть pgx API, нужная проверкам схемы
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresChecker проверка PostgreSQL через pgxpool
func PostgresChecker(pool *pgxpool.Pool) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		start := time.Now()

		// Пингуем базу
		err := pool.Ping(ctx)
		duration := time.Since(start)

		if err != nil {
			return CheckResult{
				Status: StatusDown,
				Error:  err.Error(),
				Details: map[string]any{
					"duration_ms": duration.Milliseconds(),
				},
			}
		}

		// Получаем статистику пула
		stats := pool.Stat()

		return CheckResult{
			Status: StatusUp,
			Details: map[string]any{
				"duration_ms":    duration.Milliseconds(),
				"total_conns":    stats.TotalConns(),
				"idle_conns":     stats.IdleConns(),
				"acquired_conns": stats.AcquiredConns(),
			},
		}
	})
}

// ProbeChecker оборачивает булеву пробу хранилища
func ProbeChecker(backend string, probe func(ctx context.Context) bool) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		start := time.Now()
		ok := probe(ctx)
		details := map[string]any{
			"backend":     backend,
			"duration_ms": time.Since(start).Milliseconds(),
		}

		if !ok {
			return CheckResult{
				Status:  StatusDown,
				Error:   fmt.Sprintf("%s is unreachable", backend),
				Details: details,
			}
		}
		return CheckResult{Status: StatusUp, Details: details}
	})
}

// MigrationChecker сверяет версию схемы golang-migrate с ожидаемой
func MigrationChecker(q Querier, expected uint) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		var (
			version int64
			dirty   bool
		)

		err := q.QueryRow(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
		if err != nil {
			return CheckResult{
				Status: StatusDown,
				Error:  fmt.Sprintf("failed to read migration version: %v", err),
			}
		}

		details := map[string]any{
			"version": version,
			"dirty":   dirty,
		}
		if expected > 0 {
			details["expected"] = expected
		}

		switch {
		case dirty:
			return CheckResult{Status: StatusDown, Error: "migration is dirty", Details: details}
		case expected > 0 && uint(version) < expected:
			return CheckResult{Status: StatusDown, Error: "schema is behind expected version", Details: details}
		default:
			return CheckResult{Status: StatusUp, Details: details}
		}
	})
}

// SimpleTableChecker проверяет наличие обязательных таблиц
func SimpleTableChecker(q Querier, tables []string) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		var missing []string

		for _, table := range tables {
			var exists bool
			err := q.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)",
				table,
			).Scan(&exists)
			if err != nil {
				return CheckResult{
					Status: StatusDown,
					Error:  fmt.Sprintf("failed to check table %s: %v", table, err),
				}
			}
			if !exists {
				missing = append(missing, table)
			}
		}

		if len(missing) > 0 {
			return CheckResult{
				Status:  StatusDown,
				Error:   "required tables are missing",
				Details: map[string]any{"missing": missing},
			}
		}

		return CheckResult{
			Status:  StatusUp,
			Details: map[string]any{"tables": tables},
		}
	})
}

// SyncBacklogChecker падает, если сущностей с неудачной последней синхронизацией больше maxFailed
func SyncBacklogChecker(countFailed func(ctx context.Context) (int, error), maxFailed int) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		failed, err := countFailed(ctx)
		if err != nil {
			return CheckResult{
				Status: StatusDown,
				Error:  fmt.Sprintf("failed to read sync log: %v", err),
			}
		}

		details := map[string]any{
			"failed_entities": failed,
			"max_failed":      maxFailed,
		}
		if failed > maxFailed {
			return CheckResult{
				Status:  StatusDown,
				Error:   "too many entities failed to sync",
				Details: details,
			}
		}
		return CheckResult{Status: StatusUp, Details: details}
	})
}
