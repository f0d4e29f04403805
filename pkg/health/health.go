package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status статус проверки
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// CheckResult результат одной проверки
type CheckResult struct {
	Status  Status         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Checker выполняет одну проверку здоровья
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc адаптер функции к Checker
type CheckerFunc func(ctx context.Context) CheckResult

func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Response ответ /health
type Response struct {
	Status    Status                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  string                 `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Config настройки health сервера и проверок
type Config struct {
	ServiceName      string
	Version          string
	Port             string
	Timeout          time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RequiredTables   []string
	MigrationVersion uint
}

func defaultConfig() Config {
	return Config{
		ServiceName:  "eventsync",
		Version:      "dev",
		Port:         ":8090",
		Timeout:      5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Option изменяет Config
type Option func(*Config)

func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

func WithVersion(version string) Option {
	return func(c *Config) { c.Version = version }
}

func WithPort(port string) Option {
	return func(c *Config) { c.Port = port }
}

// WithTimeout ограничивает время каждой проверки
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

func WithRequiredTables(tables ...string) Option {
	return func(c *Config) { c.RequiredTables = tables }
}

// WithMigrationVersion задает ожидаемую версию схемы; 0 отключает сравнение
func WithMigrationVersion(version uint) Option {
	return func(c *Config) { c.MigrationVersion = version }
}

// Health агрегирует именованные проверки
type Health struct {
	service string
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Checker
}

// New создает агрегатор проверок
func New(service, version string, opts ...Option) *Health {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Health{
		service: service,
		version: version,
		timeout: cfg.Timeout,
		checks:  make(map[string]Checker),
	}
}

// AddCheck добавляет или заменяет проверку name
func (h *Health) AddCheck(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// Names возвращает имена проверок в алфавитном порядке
func (h *Health) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check выполняет все проверки параллельно, каждую со своим таймаутом.
// Общий статус down, если хотя бы одна проверка down.
func (h *Health) Check(ctx context.Context) Response {
	start := time.Now()

	h.mu.RLock()
	checks := make(map[string]Checker, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
	)

	for name, checker := range checks {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			res := h.run(ctx, checker)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	status := StatusUp
	for _, res := range results {
		if res.Status != StatusUp {
			status = StatusDown
			break
		}
	}

	return Response{
		Status:    status,
		Service:   h.service,
		Version:   h.version,
		Timestamp: start.UTC(),
		Duration:  time.Since(start).String(),
		Checks:    results,
	}
}

func (h *Health) run(ctx context.Context, checker Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- CheckResult{Status: StatusDown, Error: "check panicked"}
			}
		}()
		done <- checker.Check(ctx)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return CheckResult{Status: StatusDown, Error: "check timed out"}
	}
}
