package resilience

import (
	"context"
	"time"
)

// Outcome описывает результат прогона операции через конвейер
type Outcome struct {
	// Attempts - сколько раз операция реально вызывалась; 0, если цепь разомкнута
	Attempts int
	Duration time.Duration
}

// Pipeline объединяет политики: breaker снаружи, повторы внутри,
// общий deadline на все попытки.
type Pipeline struct {
	breaker *CircuitBreaker
	retry   *RetryLogic
	timeout time.Duration
}

func NewPipeline(breaker *CircuitBreaker, retry *RetryLogic, timeout time.Duration) *Pipeline {
	return &Pipeline{
		breaker: breaker,
		retry:   retry,
		timeout: timeout,
	}
}

// Breaker возвращает breaker конвейера
func (p *Pipeline) Breaker() *CircuitBreaker {
	return p.breaker
}

// Execute выполняет операцию через все политики
func (p *Pipeline) Execute(ctx context.Context, operation func(context.Context) error) (Outcome, error) {
	start := time.Now()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	attempts := 0
	run := func(ctx context.Context) error {
		if p.retry == nil {
			attempts++
			return operation(ctx)
		}
		n, err := p.retry.Execute(ctx, operation)
		attempts = n
		return err
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, run)
	} else {
		err = run(ctx)
	}

	return Outcome{Attempts: attempts, Duration: time.Since(start)}, err
}
