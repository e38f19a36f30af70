// Package coa: клиент системы временной брони мест и её in-memory симулятор.
package coa

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway"
)

// ServiceName: имя сервиса в ошибках и метриках.
const ServiceName = "COA"

type Config struct {
	Endpoint string
	// RefreshToken передаётся заголовком и выдаётся владельцем системы брони.
	RefreshToken string
	Timeout      time.Duration
}

// Client вызывает API временной брони мест.
type Client struct {
	http  *resty.Client
	guard *gateway.Guard
}

func NewClient(cfg Config, guard *gateway.Guard) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if guard == nil {
		guard = gateway.NewGuard("coa")
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.RefreshToken != "" {
		httpClient.SetAuthToken(cfg.RefreshToken)
	}
	return &Client{http: httpClient, guard: guard}
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (c *Client) Hold(ctx context.Context, req domain.SeatHoldRequest) (domain.SeatHold, error) {
	var hold domain.SeatHold
	err := c.guard.Do(ctx, "hold", func(ctx context.Context) error {
		var apiErr errorBody
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&hold).
			SetError(&apiErr).
			Post(eventPath(req) + "/holds")
		if err != nil {
			return gateway.RequestError(ServiceName, err)
		}
		if resp.IsError() {
			return gateway.MapStatus(ServiceName, resp.StatusCode(), apiErr.Name, apiErr.Message)
		}
		return nil
	})
	return hold, err
}

// Release снимает бронь; отсутствующая бронь считается уже снятой.
func (c *Client) Release(ctx context.Context, req domain.SeatHoldRequest, holdNumber string) error {
	return c.guard.Do(ctx, "release", func(ctx context.Context) error {
		var apiErr errorBody
		resp, err := c.http.R().
			SetContext(ctx).
			SetError(&apiErr).
			Delete(eventPath(req) + "/holds/" + url.PathEscape(holdNumber))
		if err != nil {
			return gateway.RequestError(ServiceName, err)
		}
		if resp.StatusCode() == 404 {
			return nil
		}
		if resp.IsError() {
			return gateway.MapStatus(ServiceName, resp.StatusCode(), apiErr.Name, apiErr.Message)
		}
		return nil
	})
}

func eventPath(req domain.SeatHoldRequest) string {
	return "/theaters/" + url.PathEscape(req.TheaterCode) + "/events/" + url.PathEscape(req.EventIdentifier)
}

var _ domain.SeatReservationGateway = (*Client)(nil)
