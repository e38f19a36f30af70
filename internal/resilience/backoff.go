package resilience

import "time"

// RetryConfig описывает экспоненциальную задержку между попытками.
type RetryConfig struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// Backoff возвращает задержку перед попыткой attempt (нумерация с 1).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	delay := c.InitialDelay
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}
