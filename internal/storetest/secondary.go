package storetest

import (
	"context"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
)

// Secondary - in-memory вторичное хранилище
type Secondary[T dualwrite.Identifiable] struct {
	*faults
	data table[T]
}

var _ dualwrite.SecondaryStore[Item] = (*Secondary[Item])(nil)

func NewSecondary[T dualwrite.Identifiable](seed ...T) *Secondary[T] {
	s := &Secondary[T]{faults: newFaults()}
	s.data.items = append(s.data.items, seed...)
	return s
}

// Items возвращает копию всех записей
func (s *Secondary[T]) Items() []T {
	return s.data.snapshot()
}

// Len возвращает число записей
func (s *Secondary[T]) Len() int {
	return len(s.data.snapshot())
}

// Put кладет запись в обход внедренных ошибок
func (s *Secondary[T]) Put(entity T) {
	if s.data.update(entity) == 0 {
		_ = s.data.insert(entity)
	}
}

func (s *Secondary[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := s.enter(ctx, OpGet); err != nil {
		return nil, err
	}
	return s.data.get(id), nil
}

func (s *Secondary[T]) Insert(ctx context.Context, entity T) error {
	if err := s.enter(ctx, OpInsert); err != nil {
		return err
	}
	return s.data.insert(entity)
}

func (s *Secondary[T]) Update(ctx context.Context, entity T) (int, error) {
	if err := s.enter(ctx, OpUpdate); err != nil {
		return 0, err
	}
	return s.data.update(entity), nil
}

func (s *Secondary[T]) Delete(ctx context.Context, id string) (int, error) {
	if err := s.enter(ctx, OpDelete); err != nil {
		return 0, err
	}
	return s.data.remove(id), nil
}

func (s *Secondary[T]) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.enter(ctx, OpExists); err != nil {
		return false, err
	}
	return s.data.get(id) != nil, nil
}

func (s *Secondary[T]) Count(ctx context.Context) (int64, error) {
	if err := s.enter(ctx, OpCount); err != nil {
		return 0, err
	}
	return int64(s.Len()), nil
}

func (s *Secondary[T]) Ping(ctx context.Context) error {
	return s.enter(ctx, OpPing)
}
