package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrCircuitOpen возвращается без вызова операции, пока цепь разомкнута
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrConflict - конфликт обновления в хранилище, считается временной ошибкой
	ErrConflict = errors.New("store update conflict")
)

// Classifier решает, относится ли ошибка к временным
type Classifier func(error) bool

type transient interface {
	Transient() bool
}

// IsTransient - классификатор по умолчанию: конфликт, таймаут, отмена операции.
// Ошибки программирования сюда не попадают и пробрасываются наружу.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrConflict) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Conflict помечает ошибку драйвера как конфликт обновления
func Conflict(err error) error {
	return fmt.Errorf("%w: %w", ErrConflict, err)
}
