package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter решает, можно ли сейчас выполнить вызов под ключом key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter: token bucket в памяти процесса, отдельный для каждого ключа.
type LocalLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLocalLimiter создаёт лимитер на rps вызовов в секунду с запасом burst.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow забирает токен, если он есть.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

// Wait блокируется, пока не появится токен или не отменится ctx.
func (l *LocalLimiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

// Unlimited пропускает все вызовы.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

var (
	_ Limiter = (*LocalLimiter)(nil)
	_ Limiter = Unlimited{}
)
