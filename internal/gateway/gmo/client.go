// Package gmo: клиент кредитного шлюза GMO и его in-memory симулятор.
package gmo

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway"
)

// ServiceName: имя шлюза в ошибках и метриках.
const ServiceName = "GMO"

// Config: параметры подключения к шлюзу.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client вызывает протокол idPass шлюза: form-запрос, ответ в формате query string.
type Client struct {
	http  *resty.Client
	guard *gateway.Guard
}

// NewClient создаёт клиента шлюза.
func NewClient(cfg Config, guard *gateway.Guard) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if guard == nil {
		guard = gateway.NewGuard("gmo")
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "text/plain")
	return &Client{http: httpClient, guard: guard}
}

func (c *Client) EntryTran(ctx context.Context, args domain.EntryTranArgs) (domain.EntryTranResult, error) {
	values, err := c.post(ctx, "entryTran", "/payment/EntryTran.idPass", map[string]string{
		"ShopID":   args.ShopID,
		"ShopPass": args.ShopPass,
		"OrderID":  args.OrderID,
		"JobCd":    string(args.JobCd),
		"Amount":   strconv.Itoa(args.Amount),
	})
	if err != nil {
		return domain.EntryTranResult{}, err
	}
	return domain.EntryTranResult{
		AccessID:   values.Get("AccessID"),
		AccessPass: values.Get("AccessPass"),
	}, nil
}

func (c *Client) ExecTran(ctx context.Context, args domain.ExecTranArgs) (domain.ExecTranResult, error) {
	form := map[string]string{
		"AccessID":   args.AccessID,
		"AccessPass": args.AccessPass,
		"OrderID":    args.OrderID,
		"Method":     args.Method,
	}
	if args.Token != "" {
		form["Token"] = args.Token
	} else {
		form["SiteID"] = args.SiteID
		form["SitePass"] = args.SitePass
		form["MemberID"] = args.MemberID
		form["CardSeq"] = args.CardSeq
	}
	values, err := c.post(ctx, "execTran", "/payment/ExecTran.idPass", form)
	if err != nil {
		return domain.ExecTranResult{}, err
	}
	return domain.ExecTranResult{
		ACS:      values.Get("ACS"),
		Forward:  values.Get("Forward"),
		Method:   values.Get("Method"),
		Approve:  values.Get("Approve"),
		TranID:   values.Get("TranID"),
		TranDate: values.Get("TranDate"),
	}, nil
}

func (c *Client) AlterTran(ctx context.Context, args domain.AlterTranArgs) (domain.AlterTranResult, error) {
	form := map[string]string{
		"ShopID":     args.ShopID,
		"ShopPass":   args.ShopPass,
		"AccessID":   args.AccessID,
		"AccessPass": args.AccessPass,
		"JobCd":      string(args.JobCd),
	}
	if args.Amount > 0 {
		form["Amount"] = strconv.Itoa(args.Amount)
	}
	values, err := c.post(ctx, "alterTran", "/payment/AlterTran.idPass", form)
	if err != nil {
		return domain.AlterTranResult{}, err
	}
	return alterTranResult(values), nil
}

func (c *Client) ChangeTran(ctx context.Context, args domain.ChangeTranArgs) (domain.AlterTranResult, error) {
	values, err := c.post(ctx, "changeTran", "/payment/ChangeTran.idPass", map[string]string{
		"ShopID":     args.ShopID,
		"ShopPass":   args.ShopPass,
		"AccessID":   args.AccessID,
		"AccessPass": args.AccessPass,
		"JobCd":      string(args.JobCd),
		"Amount":     strconv.Itoa(args.Amount),
	})
	if err != nil {
		return domain.AlterTranResult{}, err
	}
	return alterTranResult(values), nil
}

func (c *Client) SearchTrade(ctx context.Context, args domain.SearchTradeArgs) (domain.Trade, error) {
	values, err := c.post(ctx, "searchTrade", "/payment/SearchTrade.idPass", map[string]string{
		"ShopID":   args.ShopID,
		"ShopPass": args.ShopPass,
		"OrderID":  args.OrderID,
	})
	if err != nil {
		return domain.Trade{}, err
	}
	amount, _ := strconv.Atoi(values.Get("Amount"))
	return domain.Trade{
		OrderID:    values.Get("OrderID"),
		Status:     domain.TradeStatus(values.Get("Status")),
		JobCd:      domain.JobCd(values.Get("JobCd")),
		AccessID:   values.Get("AccessID"),
		AccessPass: values.Get("AccessPass"),
		Amount:     amount,
		Forward:    values.Get("Forward"),
		Approve:    values.Get("Approve"),
		TranID:     values.Get("TranID"),
		TranDate:   values.Get("TranDate"),
	}, nil
}

func (c *Client) post(ctx context.Context, operation, path string, form map[string]string) (url.Values, error) {
	var values url.Values
	err := c.guard.Do(ctx, operation, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetFormData(form).
			Post(path)
		if err != nil {
			return gateway.RequestError(ServiceName, err)
		}
		values, err = parseResponse(resp.StatusCode(), resp.Body())
		return err
	})
	return values, err
}

// parseResponse разбирает ответ шлюза.
// Ошибка приходит полями ErrCode/ErrInfo, коды нескольких ошибок разделены '|'.
func parseResponse(status int, body []byte) (url.Values, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, &domain.ExternalError{Service: ServiceName, StatusCode: status, Name: "InvalidResponse", Message: err.Error()}
	}
	if code := values.Get("ErrCode"); code != "" {
		return nil, &domain.ExternalError{
			Service:    ServiceName,
			StatusCode: status,
			Name:       firstOf(code),
			Message:    values.Get("ErrInfo"),
		}
	}
	if status >= 300 {
		return nil, &domain.ExternalError{Service: ServiceName, StatusCode: status, Name: "HTTPError", Message: string(body)}
	}
	return values, nil
}

func alterTranResult(values url.Values) domain.AlterTranResult {
	return domain.AlterTranResult{
		AccessID:   values.Get("AccessID"),
		AccessPass: values.Get("AccessPass"),
		Forward:    values.Get("Forward"),
		Approve:    values.Get("Approve"),
		TranID:     values.Get("TranID"),
		TranDate:   values.Get("TranDate"),
	}
}

// ErrInfo возвращает коды ErrInfo бизнес-отказа шлюза.
// ok=false для транспортных ошибок и HTTP-статусов не 2xx.
func ErrInfo(err error) (codes []string, ok bool) {
	var ext *domain.ExternalError
	if !errors.As(err, &ext) || ext.Service != ServiceName {
		return nil, false
	}
	if ext.StatusCode == 0 || ext.StatusCode >= 300 {
		return nil, false
	}
	for _, part := range strings.Split(ext.Message, "|") {
		if i := strings.IndexByte(part, ':'); i >= 0 {
			part = part[:i]
		}
		if part = strings.TrimSpace(part); part != "" {
			codes = append(codes, part)
		}
	}
	return codes, true
}

func firstOf(codes string) string {
	if i := strings.IndexByte(codes, '|'); i >= 0 {
		return codes[:i]
	}
	return codes
}

var _ domain.CreditCardGateway = (*Client)(nil)
