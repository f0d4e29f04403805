package resilience

import "time"

// Settings содержит параметры всех политик конвейера
type Settings struct {
	// Circuit breaker
	FailureRatio      float64
	SamplingDuration  time.Duration
	MinimumThroughput int
	BreakDuration     time.Duration

	// Retry
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	// Deadline на всю попытку записи во вторичное хранилище
	Timeout time.Duration

	Classifier    Classifier
	OnStateChange func(name string, from, to State)
}

// DefaultSettings возвращает значения по умолчанию:
// 50% ошибок за 30 секунд при минимум 5 вызовах, разрыв на 30 секунд,
// 3 попытки с экспоненциальной задержкой от 100мс.
func DefaultSettings() Settings {
	return Settings{
		FailureRatio:      0.5,
		SamplingDuration:  30 * time.Second,
		MinimumThroughput: 5,
		BreakDuration:     30 * time.Second,
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		Jitter:            0.25,
		Timeout:           5 * time.Second,
		Classifier:        IsTransient,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.FailureRatio <= 0 {
		s.FailureRatio = def.FailureRatio
	}
	if s.SamplingDuration <= 0 {
		s.SamplingDuration = def.SamplingDuration
	}
	if s.MinimumThroughput <= 0 {
		s.MinimumThroughput = def.MinimumThroughput
	}
	if s.BreakDuration <= 0 {
		s.BreakDuration = def.BreakDuration
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = def.MaxAttempts
	}
	if s.BaseDelay <= 0 {
		s.BaseDelay = def.BaseDelay
	}
	if s.MaxDelay < s.BaseDelay {
		s.MaxDelay = s.BaseDelay
	}
	if s.Jitter < 0 || s.Jitter >= 1 {
		s.Jitter = def.Jitter
	}
	if s.Classifier == nil {
		s.Classifier = IsTransient
	}
	return s
}
