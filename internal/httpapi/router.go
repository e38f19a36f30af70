// Package httpapi: служебный HTTP API: здоровье, метрики и чтение журнала действий
// для разбора инцидентов.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/health"
	"github.com/vladislavdragonenkov/ticketing/internal/version"
)

// ActionReader: чтение журнала действий.
type ActionReader interface {
	FindByID(ctx context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error)
	SearchByTransactionID(ctx context.Context, params domain.SearchActionsParams) ([]domain.Action, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) ([]domain.Action, error)
}

// TransactionReader: чтение транзакций.
type TransactionReader interface {
	FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error)
}

// TaskReader: чтение задач очереди.
type TaskReader interface {
	FindByID(ctx context.Context, id string) (domain.Task, error)
}

// Dependencies: источники данных роутера. Пустые поля отключают соответствующие маршруты.
type Dependencies struct {
	Actions      ActionReader
	Transactions TransactionReader
	Tasks        TaskReader
	Health       *health.Registry
	Logger       *log.Entry
	// ServiceName: имя сервиса в спанах otelgin.
	ServiceName string
}

type handler struct {
	actions      ActionReader
	transactions TransactionReader
	tasks        TaskReader
	health       *health.Registry
}

// NewRouter собирает gin-роутер.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "ticketing"
	}
	registry := deps.Health
	if registry == nil {
		registry = health.NewRegistry(version.Version(), 0)
	}

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), requestLogger(logger))

	h := &handler{
		actions:      deps.Actions,
		transactions: deps.Transactions,
		tasks:        deps.Tasks,
		health:       registry,
	}

	r.GET("/health", h.handleHealth)
	r.GET("/ready", h.handleReady)
	r.GET("/live", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/version", h.handleVersion)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	if h.actions != nil {
		v1.GET("/actions/:type/:id", h.handleAction)
		v1.GET("/orders/:orderNumber/actions", h.handleOrderActions)
		v1.GET("/transactions/:type/:id/actions", h.handleTransactionActions)
	}
	if h.transactions != nil {
		v1.GET("/transactions/:type/:id", h.handleTransaction)
	}
	if h.tasks != nil {
		v1.GET("/tasks/:id", h.handleTask)
	}
	return r
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("http request failed")
			return
		}
		entry.Debug("http request")
	}
}

func (h *handler) handleHealth(c *gin.Context) {
	resp := h.health.Report(c.Request.Context())
	code := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h *handler) handleReady(c *gin.Context) {
	if !h.health.Ready(c.Request.Context()) {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}

func (h *handler) handleVersion(c *gin.Context) {
	v, commit, date := version.Info()
	c.JSON(http.StatusOK, gin.H{"version": v, "commit": commit, "date": date})
}
