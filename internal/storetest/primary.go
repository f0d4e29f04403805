package storetest

import (
	"context"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
)

// Primary - in-memory основное хранилище
type Primary[T dualwrite.Identifiable] struct {
	*faults
	data table[T]
}

var _ dualwrite.PrimaryStore[Item] = (*Primary[Item])(nil)

func NewPrimary[T dualwrite.Identifiable](seed ...T) *Primary[T] {
	p := &Primary[T]{faults: newFaults()}
	p.data.items = append(p.data.items, seed...)
	return p
}

// Items возвращает копию всех записей
func (p *Primary[T]) Items() []T {
	return p.data.snapshot()
}

func (p *Primary[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := p.enter(ctx, OpGet); err != nil {
		return nil, err
	}
	return p.data.get(id), nil
}

func (p *Primary[T]) Insert(ctx context.Context, entity T) (T, error) {
	if err := p.enter(ctx, OpInsert); err != nil {
		var zero T
		return zero, err
	}
	if err := p.data.insert(entity); err != nil {
		var zero T
		return zero, err
	}
	return entity, nil
}

func (p *Primary[T]) Update(ctx context.Context, entity T) (int, error) {
	if err := p.enter(ctx, OpUpdate); err != nil {
		return 0, err
	}
	return p.data.update(entity), nil
}

func (p *Primary[T]) Delete(ctx context.Context, entity T) (int, error) {
	if err := p.enter(ctx, OpDelete); err != nil {
		return 0, err
	}
	return p.data.remove(entity.GetID()), nil
}

// InsertMany вставляет все или ничего
func (p *Primary[T]) InsertMany(ctx context.Context, entities []T) ([]T, error) {
	if err := p.enter(ctx, OpInsertMany); err != nil {
		return nil, err
	}

	p.data.mu.Lock()
	defer p.data.mu.Unlock()
	for _, e := range entities {
		if id := e.GetID(); id != "" && p.data.find(id) >= 0 {
			return nil, ErrDuplicate
		}
	}
	p.data.items = append(p.data.items, entities...)

	out := make([]T, len(entities))
	copy(out, entities)
	return out, nil
}

// UpdateMany возвращает только найденные сущности
func (p *Primary[T]) UpdateMany(ctx context.Context, entities []T) ([]T, error) {
	if err := p.enter(ctx, OpUpdateMany); err != nil {
		return nil, err
	}
	var out []T
	for _, e := range entities {
		if p.data.update(e) > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *Primary[T]) DeleteMany(ctx context.Context, entities []T) ([]T, error) {
	if err := p.enter(ctx, OpDeleteMany); err != nil {
		return nil, err
	}
	var out []T
	for _, e := range entities {
		if p.data.remove(e.GetID()) > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

// Scan отдает записи в порядке вставки пачками по batchSize
func (p *Primary[T]) Scan(ctx context.Context, batchSize int, fn func(batch []T) error) error {
	if err := p.enter(ctx, OpScan); err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	items := p.data.snapshot()
	for start := 0; start < len(items); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(items))
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Primary[T]) Count(ctx context.Context) (int64, error) {
	if err := p.enter(ctx, OpCount); err != nil {
		return 0, err
	}
	return int64(len(p.data.snapshot())), nil
}

func (p *Primary[T]) Ping(ctx context.Context) error {
	return p.enter(ctx, OpPing)
}
