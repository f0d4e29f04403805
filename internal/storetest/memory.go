// Package storetest содержит in-memory реализации хранилищ для тестов
// с внедрением ошибок и паник по операциям.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
)

// Op имя операции хранилища
type Op string

const (
	OpGet        Op = "get"
	OpInsert     Op = "insert"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
	OpInsertMany Op = "insert_many"
	OpUpdateMany Op = "update_many"
	OpDeleteMany Op = "delete_many"
	OpScan       Op = "scan"
	OpExists     Op = "exists"
	OpCount      Op = "count"
	OpPing       Op = "ping"
	OpAppend     Op = "append"
)

// ErrDuplicate возвращается при вставке существующего идентификатора
var ErrDuplicate = fmt.Errorf("duplicate id: %w", dualwrite.ErrAlreadyExists)

type fault struct {
	err   error
	panic any
	times int // 0 - всегда
}

// faults хранит внедренные ошибки и счетчики вызовов
type faults struct {
	mu     sync.Mutex
	byOp   map[Op]*fault
	calls  map[Op]int
	hookFn map[Op]func(ctx context.Context) error
}

func newFaults() *faults {
	return &faults{
		byOp:   make(map[Op]*fault),
		calls:  make(map[Op]int),
		hookFn: make(map[Op]func(ctx context.Context) error),
	}
}

// FailOn заставляет операцию op всегда возвращать err
func (f *faults) FailOn(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byOp[op] = &fault{err: err}
}

// FailTimes заставляет первые n вызовов op вернуть err
func (f *faults) FailTimes(op Op, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byOp[op] = &fault{err: err, times: n}
}

// PanicOn заставляет операцию op паниковать со значением v
func (f *faults) PanicOn(op Op, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byOp[op] = &fault{panic: v}
}

// Hook вызывает fn перед операцией op; ошибка fn возвращается из операции
func (f *faults) Hook(op Op, fn func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hookFn[op] = fn
}

// Heal снимает все внедренные ошибки
func (f *faults) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byOp = make(map[Op]*fault)
	f.hookFn = make(map[Op]func(ctx context.Context) error)
}

// Calls возвращает число вызовов op
func (f *faults) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faults) enter(ctx context.Context, op Op) error {
	f.mu.Lock()
	f.calls[op]++
	ft := f.byOp[op]
	hook := f.hookFn[op]
	if ft != nil && ft.times > 0 {
		ft.times--
		if ft.times == 0 {
			delete(f.byOp, op)
		}
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if ft != nil {
		if ft.panic != nil {
			panic(ft.panic)
		}
		return ft.err
	}
	return ctx.Err()
}

// table - упорядоченное хранилище записей, допускает записи без идентификатора
type table[T dualwrite.Identifiable] struct {
	mu    sync.RWMutex
	items []T
}

func (t *table[T]) find(id string) int {
	for i, item := range t.items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

func (t *table[T]) get(id string) *T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.find(id); i >= 0 {
		v := t.items[i]
		return &v
	}
	return nil
}

func (t *table[T]) insert(entity T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id := entity.GetID(); id != "" && t.find(id) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	t.items = append(t.items, entity)
	return nil
}

func (t *table[T]) update(entity T) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.find(entity.GetID()); i >= 0 {
		t.items[i] = entity
		return 1
	}
	return 0
}

func (t *table[T]) remove(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.find(id); i >= 0 {
		t.items = append(t.items[:i], t.items[i+1:]...)
		return 1
	}
	return 0
}

func (t *table[T]) snapshot() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, len(t.items))
	copy(out, t.items)
	return out
}
