// Package gateway содержит общую обвязку вызовов внешних сервисов:
// лимит обращений, circuit breaker, метрики и трассировку.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/resilience"
	"github.com/vladislavdragonenkov/ticketing/internal/tracing"
)

// Guard оборачивает каждый вызов внешнего сервиса.
type Guard struct {
	name    string
	limiter resilience.Limiter
	breaker *resilience.CircuitBreaker
	metrics *metrics.TicketingMetrics
	logger  *log.Entry
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithLimiter ограничивает частоту вызовов.
func WithLimiter(l resilience.Limiter) GuardOption {
	return func(g *Guard) { g.limiter = l }
}

// WithBreaker включает circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) GuardOption {
	return func(g *Guard) { g.breaker = cb }
}

// WithMetrics задаёт коллекторы для ticketing_gateway_calls_total.
func WithMetrics(m *metrics.TicketingMetrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard создаёт обвязку для сервиса name.
func NewGuard(name string, opts ...GuardOption) *Guard {
	g := &Guard{name: name}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.WithField("component", name+"-gateway")
	}
	return g
}

// Name возвращает имя сервиса.
func (g *Guard) Name() string {
	return g.name
}

// Do выполняет fn под лимитом и breaker'ом.
// Отказ лимитера превращается в RateLimitExceeded, открытый breaker в ServiceUnavailable.
func (g *Guard) Do(ctx context.Context, operation string, fn func(context.Context) error) (err error) {
	ctx, span := tracing.Start(ctx, g.name+"."+operation,
		attribute.String("gateway.name", g.name),
		attribute.String("gateway.operation", operation),
	)
	defer func() {
		g.metrics.RecordGatewayCall(g.name, operation, metrics.Outcome(err))
		tracing.End(span, err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	if g.limiter != nil {
		allowed, limitErr := g.limiter.Allow(ctx, g.name)
		if limitErr != nil {
			// Лимитер недоступен: вызов пропускаем.
			g.logger.WithError(limitErr).WithField("operation", operation).Warn("rate limiter unavailable")
		} else if !allowed {
			return domain.RateLimitExceeded(fmt.Sprintf("%s %s: rate limit exceeded", g.name, operation))
		}
	}

	if g.breaker == nil {
		return fn(ctx)
	}
	err = g.breaker.Execute(operation, func() error { return fn(ctx) })
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return domain.ServiceUnavailable(fmt.Sprintf("%s %s: circuit open", g.name, operation))
	}
	return err
}

// CountsAsFailure решает, должна ли ошибка открывать breaker.
// Бизнес-отказы (отклонённая карта, нехватка баллов) сервис не ломают.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ext *domain.ExternalError
	if errors.As(err, &ext) {
		return ext.StatusCode == 0 || ext.StatusCode >= http.StatusInternalServerError
	}
	switch domain.KindOf(err) {
	case domain.KindServiceUnavailable:
		return true
	case "":
		return true
	default:
		return false
	}
}

// RequestError описывает сбой транспорта до получения ответа.
func RequestError(service string, err error) error {
	return &domain.ExternalError{Service: service, Name: "RequestError", Message: err.Error()}
}

// MapStatus переводит HTTP-статус ответа внешнего сервиса в доменную ошибку.
// Неизвестные статусы остаются ExternalError.
func MapStatus(service string, status int, name, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	full := fmt.Sprintf("%s: %s", service, message)
	switch status {
	case http.StatusBadRequest:
		return domain.Argument(service, full)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.Forbidden(full)
	case http.StatusNotFound:
		return domain.NotFound(service + " resource")
	case http.StatusConflict:
		return domain.AlreadyInUse(service, nil, full)
	case http.StatusTooManyRequests:
		return domain.RateLimitExceeded(full)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.ServiceUnavailable(full)
	default:
		if name == "" {
			name = http.StatusText(status)
		}
		return &domain.ExternalError{Service: service, StatusCode: status, Name: name, Message: message}
	}
}
