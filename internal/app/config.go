package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageDriver выбирает реализацию репозиториев.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// GatewayMode выбирает реальные HTTP-клиенты или встроенные симуляторы.
type GatewayMode string

const (
	GatewayModeSimulator GatewayMode = "simulator"
	GatewayModeHTTP      GatewayMode = "http"
)

// Config описывает все настройки запуска сервиса.
type Config struct {
	GRPCAddr string `yaml:"grpcAddr"`
	HTTPAddr string `yaml:"httpAddr"`

	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateways GatewaysConfig `yaml:"gateways"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	// Sellers засевает справочник продавцов при StorageDriverMemory.
	Sellers []SellerConfig `yaml:"sellers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	PostgresDSN string        `yaml:"postgresDsn"`
	AutoMigrate bool          `yaml:"autoMigrate"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientId"`
}

// RedisConfig задаёт общий лимитер вызовов GMO; пустой Addr оставляет локальный.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewaysConfig struct {
	Mode     GatewayMode    `yaml:"mode"`
	GMO      GMOConfig      `yaml:"gmo"`
	Pecorino PecorinoConfig `yaml:"pecorino"`
	COA      COAConfig      `yaml:"coa"`
	Timeout  time.Duration  `yaml:"timeout"`
	// BreakerFailures: число подряд неудачных вызовов до размыкания.
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

type GMOConfig struct {
	Endpoint string  `yaml:"endpoint"`
	SiteID   string  `yaml:"siteId"`
	SitePass string  `yaml:"sitePass"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

type PecorinoConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	AuthEndpoint string   `yaml:"authEndpoint"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Scopes       []string `yaml:"scopes"`
}

type COAConfig struct {
	Endpoint     string `yaml:"endpoint"`
	RefreshToken string `yaml:"refreshToken"`
}

// SMTPConfig задаёт релей писем; пустой Addr пишет письма в лог.
type SMTPConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchSize    int           `yaml:"batchSize"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	// MaxPending: порог backlog для проверки здоровья.
	MaxPending int `yaml:"maxPending"`
}

type TasksConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchSize    int           `yaml:"batchSize"`
}

type SweeperConfig struct {
	Interval         time.Duration `yaml:"interval"`
	BatchSize        int           `yaml:"batchSize"`
	ReexportInterval time.Duration `yaml:"reexportInterval"`
	// TaskRetryInterval: через сколько после последней попытки задача в Running считается зависшей.
	TaskRetryInterval time.Duration `yaml:"taskRetryInterval"`
}

type SellerConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Phone    string `yaml:"telephone"`
	Email    string `yaml:"email"`
	ShopID   string `yaml:"shopId"`
	ShopPass string `yaml:"shopPass"`
}

// DefaultConfig возвращает настройки для локального запуска: память и симуляторы.
func DefaultConfig() Config {
	return Config{
		GRPCAddr: ":50051",
		HTTPAddr: ":9090",
		Log:      LogConfig{Level: "info", Format: "text"},
		Storage:  StorageConfig{Driver: StorageDriverMemory, AutoMigrate: true},
		Kafka:    KafkaConfig{ClientID: "ticketing"},
		Gateways: GatewaysConfig{
			Mode:            GatewayModeSimulator,
			GMO:             GMOConfig{RPS: 10, Burst: 20},
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			BatchSize:    100,
			MaxAttempts:  3,
			RetryDelay:   100 * time.Millisecond,
			MaxPending:   1000,
		},
		Tasks: TasksConfig{PollInterval: time.Second, BatchSize: 10},
		Sweeper: SweeperConfig{
			Interval:          10 * time.Second,
			BatchSize:         50,
			ReexportInterval:  10 * time.Minute,
			TaskRetryInterval: 10 * time.Minute,
		},
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл path
// (если задан), затем переменные окружения TICKETING_*.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		var raw string
		str(key, &raw)
		if raw == "" {
			return
		}
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}

	var errs []error
	duration := func(key string, dst *time.Duration) {
		var raw string
		str(key, &raw)
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	integer := func(key string, dst *int) {
		var raw string
		str(key, &raw)
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		var raw string
		str(key, &raw)
		if raw == "" {
			return
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("TICKETING_GRPC_ADDR", &cfg.GRPCAddr)
	str("TICKETING_HTTP_ADDR", &cfg.HTTPAddr)
	str("TICKETING_LOG_LEVEL", &cfg.Log.Level)
	str("TICKETING_LOG_FORMAT", &cfg.Log.Format)

	var driver string
	str("TICKETING_STORAGE_DRIVER", &driver)
	if driver != "" {
		cfg.Storage.Driver = StorageDriver(strings.ToLower(driver))
	}
	str("TICKETING_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	boolean("TICKETING_POSTGRES_AUTO_MIGRATE", &cfg.Storage.AutoMigrate)

	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("TICKETING_KAFKA_CLIENT_ID", &cfg.Kafka.ClientID)
	str("TICKETING_REDIS_ADDR", &cfg.Redis.Addr)
	str("TICKETING_REDIS_PASSWORD", &cfg.Redis.Password)

	var mode string
	str("TICKETING_GATEWAY_MODE", &mode)
	if mode != "" {
		cfg.Gateways.Mode = GatewayMode(strings.ToLower(mode))
	}
	str("TICKETING_GMO_ENDPOINT", &cfg.Gateways.GMO.Endpoint)
	str("TICKETING_GMO_SITE_ID", &cfg.Gateways.GMO.SiteID)
	str("TICKETING_GMO_SITE_PASS", &cfg.Gateways.GMO.SitePass)
	str("TICKETING_PECORINO_ENDPOINT", &cfg.Gateways.Pecorino.Endpoint)
	str("TICKETING_PECORINO_AUTH_ENDPOINT", &cfg.Gateways.Pecorino.AuthEndpoint)
	str("TICKETING_PECORINO_CLIENT_ID", &cfg.Gateways.Pecorino.ClientID)
	str("TICKETING_PECORINO_CLIENT_SECRET", &cfg.Gateways.Pecorino.ClientSecret)
	str("TICKETING_COA_ENDPOINT", &cfg.Gateways.COA.Endpoint)
	str("TICKETING_COA_REFRESH_TOKEN", &cfg.Gateways.COA.RefreshToken)

	str("TICKETING_SMTP_ADDR", &cfg.SMTP.Addr)
	str("TICKETING_SMTP_USERNAME", &cfg.SMTP.Username)
	str("TICKETING_SMTP_PASSWORD", &cfg.SMTP.Password)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	duration("TICKETING_OUTBOX_POLL_INTERVAL", &cfg.Outbox.PollInterval)
	integer("TICKETING_OUTBOX_BATCH_SIZE", &cfg.Outbox.BatchSize)
	integer("TICKETING_OUTBOX_MAX_ATTEMPTS", &cfg.Outbox.MaxAttempts)
	duration("TICKETING_OUTBOX_RETRY_DELAY", &cfg.Outbox.RetryDelay)
	integer("TICKETING_OUTBOX_MAX_PENDING", &cfg.Outbox.MaxPending)
	duration("TICKETING_TASKS_POLL_INTERVAL", &cfg.Tasks.PollInterval)
	integer("TICKETING_TASKS_BATCH_SIZE", &cfg.Tasks.BatchSize)
	duration("TICKETING_SWEEPER_INTERVAL", &cfg.Sweeper.Interval)
	integer("TICKETING_SWEEPER_BATCH_SIZE", &cfg.Sweeper.BatchSize)
	duration("TICKETING_SWEEPER_REEXPORT_INTERVAL", &cfg.Sweeper.ReexportInterval)
	duration("TICKETING_SWEEPER_TASK_RETRY_INTERVAL", &cfg.Sweeper.TaskRetryInterval)

	return errors.Join(errs...)
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgresDsn is required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}

	switch c.Gateways.Mode {
	case GatewayModeSimulator:
	case GatewayModeHTTP:
		if c.Gateways.GMO.Endpoint == "" {
			errs = append(errs, errors.New("gateways.gmo.endpoint is required for http mode"))
		}
		if c.Gateways.Pecorino.Endpoint == "" {
			errs = append(errs, errors.New("gateways.pecorino.endpoint is required for http mode"))
		}
		if c.Gateways.COA.Endpoint == "" {
			errs = append(errs, errors.New("gateways.coa.endpoint is required for http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported gateway mode %q", c.Gateways.Mode))
	}

	positive := map[string]time.Duration{
		"outbox.pollInterval":       c.Outbox.PollInterval,
		"tasks.pollInterval":        c.Tasks.PollInterval,
		"sweeper.interval":          c.Sweeper.Interval,
		"sweeper.reexportInterval":  c.Sweeper.ReexportInterval,
		"sweeper.taskRetryInterval": c.Sweeper.TaskRetryInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Outbox.BatchSize <= 0 || c.Tasks.BatchSize <= 0 || c.Sweeper.BatchSize <= 0 {
		errs = append(errs, errors.New("batch sizes must be positive"))
	}
	if c.Outbox.MaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox.maxAttempts must be positive"))
	}
	if c.Outbox.RetryDelay < 0 {
		errs = append(errs, errors.New("outbox.retryDelay must not be negative"))
	}
	return errors.Join(errs...)
}
