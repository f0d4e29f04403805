package storetest

import (
	"context"
	"sync"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
)

// SyncLog - in-memory журнал синхронизации
type SyncLog struct {
	*faults

	mu      sync.Mutex
	entries []dualwrite.SyncLogEntry
}

func NewSyncLog() *SyncLog {
	return &SyncLog{faults: newFaults()}
}

func (l *SyncLog) Append(ctx context.Context, entry dualwrite.SyncLogEntry) error {
	if err := l.enter(ctx, OpAppend); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries возвращает копию всех записей
func (l *SyncLog) Entries() []dualwrite.SyncLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dualwrite.SyncLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForEntity возвращает записи по идентификатору сущности
func (l *SyncLog) ForEntity(entityID string) []dualwrite.SyncLogEntry {
	var out []dualwrite.SyncLogEntry
	for _, e := range l.Entries() {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

// LatestFailed возвращает сущности, последняя запись которых FAILED
func (l *SyncLog) LatestFailed(ctx context.Context, entityType string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	latest := make(map[string]dualwrite.SyncLogEntry)
	var order []string
	for _, e := range l.Entries() {
		if e.EntityType != entityType || e.EntityID == dualwrite.UnknownEntityID {
			continue
		}
		if _, seen := latest[e.EntityID]; !seen {
			order = append(order, e.EntityID)
		}
		latest[e.EntityID] = e
	}

	var ids []string
	for _, id := range order {
		if latest[id].Status == dualwrite.StatusFailed {
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

// CountLatestFailed считает сущности с последней записью FAILED; пустой entityType - все типы
func (l *SyncLog) CountLatestFailed(ctx context.Context, entityType string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	type key struct{ entityType, id string }
	latest := make(map[key]dualwrite.SyncStatus)
	for _, e := range l.Entries() {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if e.EntityID == dualwrite.UnknownEntityID {
			continue
		}
		latest[key{e.EntityType, e.EntityID}] = e.Status
	}

	n := 0
	for _, status := range latest {
		if status == dualwrite.StatusFailed {
			n++
		}
	}
	return n, nil
}
