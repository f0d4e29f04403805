package resilience

import (
	"context"
	"sync"
	"time"
)

// State - состояние автомата circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const windowBuckets = 10

// CircuitBreaker размыкает цепь, когда доля временных ошибок в скользящем окне
// достигает порога. Ошибки, не прошедшие классификатор, не учитываются.
type CircuitBreaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu            sync.Mutex
	state         State
	openedAt      time.Time
	trialInFlight bool
	window        *rollingWindow
}

// NewCircuitBreaker создает breaker с именем name, обычно это тип сущности
func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	settings = settings.withDefaults()
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		state:    StateClosed,
		window:   newRollingWindow(settings.SamplingDuration, windowBuckets),
	}
}

// Name возвращает имя breaker'а
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State возвращает текущее состояние
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute вызывает fn, если цепь это позволяет, и учитывает результат
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			// fn запаниковал, освобождаем пробный слот
			cb.release()
		}
	}()

	err := fn(ctx)
	completed = true
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.BreakDuration {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trialInFlight = true
		return nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failure := err != nil && cb.settings.Classifier(err)
	success := err == nil
	now := cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.trialInFlight = false
		switch {
		case success:
			cb.window.reset()
			cb.transition(StateClosed)
		case failure:
			cb.openedAt = now
			cb.transition(StateOpen)
		}
	case StateClosed:
		if !success && !failure {
			return
		}
		cb.window.add(now, failure)
		if !failure {
			return
		}
		total, failed := cb.window.totals(now)
		if total >= cb.settings.MinimumThroughput &&
			float64(failed)/float64(total) >= cb.settings.FailureRatio {
			cb.openedAt = now
			cb.window.reset()
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
}

// transition вызывается под мьютексом
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.name, from, to)
	}
}

type bucket struct {
	start    time.Time
	total    int
	failures int
}

// rollingWindow хранит результаты вызовов, разбитые на корзины по времени
type rollingWindow struct {
	size    time.Duration
	width   time.Duration
	buckets []bucket
}

func newRollingWindow(size time.Duration, n int) *rollingWindow {
	width := size / time.Duration(n)
	if width <= 0 {
		width = size
	}
	return &rollingWindow{size: size, width: width}
}

func (w *rollingWindow) add(now time.Time, failed bool) {
	w.prune(now)

	start := now.Truncate(w.width)
	if n := len(w.buckets); n == 0 || !w.buckets[n-1].start.Equal(start) {
		w.buckets = append(w.buckets, bucket{start: start})
	}

	b := &w.buckets[len(w.buckets)-1]
	b.total++
	if failed {
		b.failures++
	}
}

func (w *rollingWindow) totals(now time.Time) (total, failures int) {
	w.prune(now)
	for _, b := range w.buckets {
		total += b.total
		failures += b.failures
	}
	return total, failures
}

func (w *rollingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.buckets) && !w.buckets[i].start.Add(w.width).After(cutoff) {
		i++
	}
	if i > 0 {
		w.buckets = append(w.buckets[:0], w.buckets[i:]...)
	}
}

func (w *rollingWindow) reset() {
	w.buckets = w.buckets[:0]
}
