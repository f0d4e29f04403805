package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rx3lixir/event-sync/internal/dualwrite"
)

const (
	appendSyncLogQuery = `INSERT INTO sync_log (` + syncLogColumns + `)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	// Последняя запись по каждой сущности; берем те, где она FAILED
	latestFailedQuery = `SELECT entity_id FROM (
							SELECT DISTINCT ON (entity_id) entity_id, status, created_at
							FROM sync_log
							WHERE entity_type = $1
							ORDER BY entity_id, created_at DESC
						) latest
						WHERE status = 'FAILED'
						ORDER BY created_at
						LIMIT $2`

	// Пустой entity_type считает по всем типам
	countLatestFailedQuery = `SELECT COUNT(*) FROM (
							SELECT DISTINCT ON (entity_type, entity_id) status
							FROM sync_log
							WHERE ($1 = '' OR entity_type = $1)
							ORDER BY entity_type, entity_id, created_at DESC
						) latest
						WHERE status = 'FAILED'`
)

// SyncLogStore - журнал синхронизации в таблице sync_log.
// Записи только добавляются.
type SyncLogStore struct {
	db DBTX
}

func NewSyncLogStore(db DBTX) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// Append добавляет запись журнала
func (s *SyncLogStore) Append(ctx context.Context, entry dualwrite.SyncLogEntry) error {
	_, err := s.db.Exec(ctx, appendSyncLogQuery,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		string(entry.Operation),
		entry.SourceBackend,
		string(entry.Status),
		entry.ErrorMessage,
		entry.PrimaryTimestamp,
		entry.SecondaryTimestamp,
		entry.RetryCount,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log entry: %w", classify(err))
	}
	return nil
}

// List возвращает записи журнала по фильтру, новые сверху
func (s *SyncLogStore) List(ctx context.Context, filter *SyncLogFilter) ([]dualwrite.SyncLogEntry, error) {
	if err := validateSyncLogFilter(filter); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	query, args := buildSyncLogQuery(filter)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	entries := []dualwrite.SyncLogEntry{}
	for rows.Next() {
		entry, err := scanSyncLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log rows: %w", err)
	}

	return entries, nil
}

// Count считает записи журнала по фильтру
func (s *SyncLogStore) Count(ctx context.Context, filter *SyncLogFilter) (int64, error) {
	if err := validateSyncLogFilter(filter); err != nil {
		return 0, fmt.Errorf("invalid filter: %w", err)
	}

	query, args := buildSyncLogCountQuery(filter)

	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync log entries: %w", err)
	}
	return n, nil
}

// LatestFailed возвращает id сущностей, чья последняя запись журнала FAILED
func (s *SyncLogStore) LatestFailed(ctx context.Context, entityType string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSyncLogLimit
	}

	rows, err := s.db.Query(ctx, latestFailedQuery, entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed entities: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed entities: %w", err)
	}

	return ids, nil
}

// CountLatestFailed считает сущности с последней записью FAILED.
// Пустой entityType означает все типы.
func (s *SyncLogStore) CountLatestFailed(ctx context.Context, entityType string) (int, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countLatestFailedQuery, entityType).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failed entities: %w", err)
	}
	return int(n), nil
}

func scanSyncLogEntry(row pgx.Row) (dualwrite.SyncLogEntry, error) {
	var (
		entry     dualwrite.SyncLogEntry
		operation string
		status    string
	)

	err := row.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&operation,
		&entry.SourceBackend,
		&status,
		&entry.ErrorMessage,
		&entry.PrimaryTimestamp,
		&entry.SecondaryTimestamp,
		&entry.RetryCount,
		&entry.CreatedAt,
	)
	if err != nil {
		return dualwrite.SyncLogEntry{}, err
	}

	entry.Operation = dualwrite.Operation(operation)
	entry.Status = dualwrite.SyncStatus(status)
	return entry, nil
}
