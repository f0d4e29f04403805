package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rx3lixir/event-sync/pkg/logger"
)

// RetryLogic повторяет операцию при временных ошибках с экспоненциальной задержкой
type RetryLogic struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	shouldRetry Classifier
	logger      logger.Logger
}

func NewRetryLogic(settings Settings, log logger.Logger) *RetryLogic {
	settings = settings.withDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &RetryLogic{
		maxAttempts: settings.MaxAttempts,
		baseDelay:   settings.BaseDelay,
		maxDelay:    settings.MaxDelay,
		jitter:      settings.Jitter,
		shouldRetry: settings.Classifier,
		logger:      log,
	}
}

// WithMaxAttempts позволяет настроить общее количество попыток
func (r *RetryLogic) WithMaxAttempts(attempts int) *RetryLogic {
	if attempts > 0 {
		r.maxAttempts = attempts
	}
	return r
}

// WithBaseDelay позволяет настроить базовую задержку
func (r *RetryLogic) WithBaseDelay(delay time.Duration) *RetryLogic {
	r.baseDelay = delay
	if r.maxDelay < delay {
		r.maxDelay = delay
	}
	return r
}

// Execute выполняет операцию и возвращает число сделанных попыток.
// Невременная ошибка возвращается сразу, без повторов.
func (r *RetryLogic) Execute(ctx context.Context, operation func(context.Context) error) (int, error) {
	attempts := 0

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.baseDelay
	expBackoff.MaxInterval = r.maxDelay
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = r.jitter

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := operation(ctx)
		if err == nil {
			if attempts > 1 {
				r.logger.Debug("Operation succeeded after retry",
					"attempt", attempts,
					"max_attempts", r.maxAttempts,
				)
			}
			return struct{}{}, nil
		}
		if !r.shouldRetry(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			r.logger.Debug("Retrying after backoff",
				"error", err,
				"delay", delay,
				"next_attempt", attempts+1,
			)
		}),
	)

	return attempts, err
}
