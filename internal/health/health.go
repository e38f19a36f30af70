// Package health собирает проверки зависимостей сервиса в отчёт для /health и /ready.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status: состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check: итог одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: отчёт о здоровье сервиса.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Registry хранит проверки и строит отчёт.
type Registry struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewRegistry создаёт реестр проверок. Каждая проверка ограничена timeout.
func NewRegistry(version string, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		timeout:   timeout,
	}
}

// Register добавляет или заменяет проверку.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Names возвращает имена проверок по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report выполняет все проверки. Degraded не делает сервис неготовым, Unhealthy делает.
func (r *Registry) Report(ctx context.Context) Response {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	checks := make(map[string]Check, len(checkers))
	overall := StatusHealthy
	for name, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		check := checker.Check(checkCtx)
		cancel()
		checks[name] = check

		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
	}
}

// Ready сообщает, нет ли среди проверок Unhealthy.
func (r *Registry) Ready(ctx context.Context) bool {
	return r.Report(ctx).Status != StatusUnhealthy
}

// FuncChecker: проверка на основе функции: ошибка означает Unhealthy.
type FuncChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

// NewFuncChecker создаёт проверку из функции.
func NewFuncChecker(name string, checkFn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, checkFn: checkFn}
}

func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.checkFn(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// BacklogChecker переходит в Degraded, когда очередь превышает порог.
// Ошибка чтения размера очереди означает Unhealthy.
type BacklogChecker struct {
	name      string
	threshold int
	size      func(ctx context.Context) (int, error)
}

// NewBacklogChecker создаёт проверку размера очереди.
func NewBacklogChecker(name string, threshold int, size func(ctx context.Context) (int, error)) *BacklogChecker {
	return &BacklogChecker{name: name, threshold: threshold, size: size}
}

func (c *BacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	n, err := c.size(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.threshold > 0 && n > c.threshold:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("backlog %d exceeds %d", n, c.threshold)
	}
	return check
}
