package db

import (
	"fmt"
	"strings"
)

const syncLogColumns = `id, entity_type, entity_id, operation, source_backend, status, error_message, primary_timestamp, secondary_timestamp, retry_count, created_at`

// buildSyncLogConditions строит WHERE условия на основе фильтра.
// Возвращает условия, аргументы и следующий номер плейсхолдера.
func buildSyncLogConditions(filter *SyncLogFilter) ([]string, []any, int) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.EntityType != nil {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", argIndex))
		args = append(args, *filter.EntityType)
		argIndex++
	}

	if filter.EntityID != nil {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", argIndex))
		args = append(args, *filter.EntityID)
		argIndex++
	}

	// Фильтр по статусам (IN clause для множественного выбора)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, string(st))
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(filter.Operations) > 0 {
		placeholders := make([]string, len(filter.Operations))
		for i, op := range filter.Operations {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, string(op))
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("operation IN (%s)", strings.Join(placeholders, ",")))
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, filter.From.UTC())
		argIndex++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, filter.To.UTC())
		argIndex++
	}

	return conditions, args, argIndex
}

// buildSyncLogQuery строит SELECT по журналу, новые записи сверху
func buildSyncLogQuery(filter *SyncLogFilter) (string, []any) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_log`

	conditions, args, argIndex := buildSyncLogConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, filter.GetLimit())
	argIndex++

	if filter.Offset != nil {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.GetOffset())
	}

	return query, args
}

// buildSyncLogCountQuery строит запрос для подсчета записей с учетом фильтров.
func buildSyncLogCountQuery(filter *SyncLogFilter) (string, []any) {
	query := `SELECT COUNT(*) FROM sync_log`

	conditions, args, _ := buildSyncLogConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	return query, args
}
