package resilience

import (
	"sync"

	"github.com/rx3lixir/event-sync/pkg/logger"
)

// Registry выдает отдельный breaker на каждое имя (тип сущности).
// Breaker'ы живут столько же, сколько реестр, и разделяются всеми репозиториями одного типа.
type Registry struct {
	settings Settings
	logger   logger.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry(settings Settings, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	settings = settings.withDefaults()

	user := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to State) {
		log.Warn("Circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
		if user != nil {
			user(name, from, to)
		}
	}

	return &Registry{
		settings: settings,
		logger:   log,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Settings возвращает настройки реестра
func (r *Registry) Settings() Settings {
	return r.settings
}

// Breaker возвращает breaker для name, создавая его при первом обращении
func (r *Registry) Breaker(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, r.settings)
		r.breakers[name] = cb
	}
	return cb
}

// Pipeline собирает конвейер с breaker'ом для name
func (r *Registry) Pipeline(name string) *Pipeline {
	return NewPipeline(
		r.Breaker(name),
		NewRetryLogic(r.settings, r.logger.With("breaker", name)),
		r.settings.Timeout,
	)
}

// States возвращает снимок состояний всех breaker'ов
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State()
	}
	return out
}
