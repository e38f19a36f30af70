// Package pecorino: клиент журнала баллов Pecorino и его in-memory симулятор.
package pecorino

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway"
)

// ServiceName: имя сервиса в ошибках и метриках.
const ServiceName = "Pecorino"

// Config: параметры подключения.
type Config struct {
	// Endpoint: адрес API для новых авторизаций.
	Endpoint string
	// AuthEndpoint: адрес сервера авторизации (client credentials).
	AuthEndpoint string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// Gateway реализует domain.PecorinoGateway поверх HTTP API.
// Клиенты кэшируются по endpoint: старые авторизации хранят свой адрес.
type Gateway struct {
	cfg    Config
	guard  *gateway.Guard
	tokens *tokenSource

	mu      sync.Mutex
	clients map[string]*resty.Client
}

// NewGateway создаёт клиента журнала баллов.
func NewGateway(cfg Config, guard *gateway.Guard) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if guard == nil {
		guard = gateway.NewGuard("pecorino")
	}
	return &Gateway{
		cfg:     cfg,
		guard:   guard,
		tokens:  newTokenSource(cfg),
		clients: make(map[string]*resty.Client),
	}
}

func (g *Gateway) Endpoint() string {
	return g.cfg.Endpoint
}

func (g *Gateway) Service(kind domain.PecorinoTransactionType, endpoint string) domain.PecorinoTransactionService {
	if endpoint == "" {
		endpoint = g.cfg.Endpoint
	}
	return &transactionService{gateway: g, kind: kind, http: g.client(endpoint)}
}

func (g *Gateway) client(endpoint string) *resty.Client {
	endpoint = strings.TrimRight(endpoint, "/")
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[endpoint]; ok {
		return c
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(g.cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	g.clients[endpoint] = c
	return c
}

type transactionService struct {
	gateway *Gateway
	kind    domain.PecorinoTransactionType
	http    *resty.Client
}

type startRequest struct {
	Expires           time.Time            `json:"expires"`
	Agent             domain.PecorinoParty `json:"agent"`
	Recipient         domain.PecorinoParty `json:"recipient"`
	Amount            int                  `json:"amount"`
	Notes             string               `json:"notes,omitempty"`
	AccountType       string               `json:"accountType,omitempty"`
	FromAccountNumber string               `json:"fromAccountNumber,omitempty"`
	ToAccountNumber   string               `json:"toAccountNumber,omitempty"`
}

type errorBody struct {
	Error struct {
		Name    string `json:"name"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *transactionService) path(suffix string) string {
	return "/transactions/" + strings.ToLower(string(s.kind)) + suffix
}

func (s *transactionService) Start(ctx context.Context, params domain.PecorinoStartParams) (domain.PecorinoTransaction, error) {
	var tx domain.PecorinoTransaction
	body := startRequest{
		Expires:           params.Expires,
		Agent:             params.Agent,
		Recipient:         params.Recipient,
		Amount:            params.Amount,
		Notes:             params.Notes,
		AccountType:       params.AccountType,
		FromAccountNumber: params.FromAccountNumber,
		ToAccountNumber:   params.ToAccountNumber,
	}
	err := s.do(ctx, "start", func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(body).SetResult(&tx).Post(s.path("/start"))
	})
	if err != nil {
		return domain.PecorinoTransaction{}, err
	}
	if tx.TypeOf == "" {
		tx.TypeOf = s.kind
	}
	return tx, nil
}

func (s *transactionService) Confirm(ctx context.Context, transactionID string) error {
	return s.do(ctx, "confirm", func(req *resty.Request) (*resty.Response, error) {
		return req.Put(s.path("/" + transactionID + "/confirm"))
	})
}

func (s *transactionService) Cancel(ctx context.Context, transactionID string) error {
	return s.do(ctx, "cancel", func(req *resty.Request) (*resty.Response, error) {
		return req.Put(s.path("/" + transactionID + "/cancel"))
	})
}

func (s *transactionService) do(ctx context.Context, operation string, send func(*resty.Request) (*resty.Response, error)) error {
	op := strings.ToLower(string(s.kind)) + "." + operation
	return s.gateway.guard.Do(ctx, op, func(ctx context.Context) error {
		token, err := s.gateway.tokens.Token(ctx)
		if err != nil {
			return err
		}
		var apiErr errorBody
		req := s.http.R().SetContext(ctx).SetError(&apiErr)
		if token != "" {
			req.SetAuthToken(token)
		}
		resp, err := send(req)
		if err != nil {
			return gateway.RequestError(ServiceName, err)
		}
		if !resp.IsError() {
			return nil
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			s.gateway.tokens.Invalidate()
		}
		return gateway.MapStatus(ServiceName, resp.StatusCode(), apiErr.Error.Name, apiErr.Error.Message)
	})
}

// tokenSource получает и кэширует access token по client credentials.
type tokenSource struct {
	cfg  Config
	http *resty.Client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func newTokenSource(cfg Config) *tokenSource {
	return &tokenSource{
		cfg:  cfg,
		http: resty.New().SetBaseURL(strings.TrimRight(cfg.AuthEndpoint, "/")).SetTimeout(cfg.Timeout),
		now:  time.Now,
	}
}

// Token возвращает действующий токен; без AuthEndpoint авторизация отключена.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	if t.cfg.AuthEndpoint == "" {
		return "", nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	// Токен обновляется за 30 секунд до истечения.
	if t.token != "" && t.now().Add(30*time.Second).Before(t.expires) {
		return t.token, nil
	}

	var out tokenResponse
	form := map[string]string{"grant_type": "client_credentials"}
	if len(t.cfg.Scopes) > 0 {
		form["scope"] = strings.Join(t.cfg.Scopes, " ")
	}
	resp, err := t.http.R().
		SetContext(ctx).
		SetBasicAuth(t.cfg.ClientID, t.cfg.ClientSecret).
		SetFormData(form).
		SetResult(&out).
		Post("/token")
	if err != nil {
		return "", gateway.RequestError(ServiceName, err)
	}
	if resp.IsError() {
		return "", gateway.MapStatus(ServiceName, resp.StatusCode(), "TokenError", fmt.Sprintf("token request failed: %s", resp.Status()))
	}
	if out.AccessToken == "" {
		return "", &domain.ExternalError{Service: ServiceName, StatusCode: resp.StatusCode(), Name: "TokenError", Message: "empty access token"}
	}

	t.token = out.AccessToken
	t.expires = t.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return t.token, nil
}

// Invalidate сбрасывает токен после 401.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
}

var _ domain.PecorinoGateway = (*Gateway)(nil)
