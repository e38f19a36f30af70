package gmo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// Calls: счётчики вызовов симулятора.
type Calls struct {
	EntryTran   int
	ExecTran    int
	AlterTran   int
	ChangeTran  int
	SearchTrade int
}

// Simulator: in-memory шлюз с правилами переходов сделки GMO.
// Ошибки *Err возвращаются до изменения состояния.
type Simulator struct {
	mu       sync.Mutex
	trades   map[string]*domain.Trade
	byAccess map[string]string
	calls    Calls

	EntryTranErr   error
	ExecTranErr    error
	AlterTranErr   error
	ChangeTranErr  error
	SearchTradeErr error
}

// NewSimulator возвращает симулятор с успешным сценарием по умолчанию.
func NewSimulator() *Simulator {
	return &Simulator{
		trades:   make(map[string]*domain.Trade),
		byAccess: make(map[string]string),
	}
}

// Calls возвращает снимок счётчиков.
func (s *Simulator) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Trade возвращает текущее состояние сделки.
func (s *Simulator) Trade(orderID string) (domain.Trade, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[orderID]
	if !ok {
		return domain.Trade{}, false
	}
	return *t, true
}

// SetFailures задаёт ошибки под мьютексом, чтобы менять их между вызовами из горутин.
func (s *Simulator) SetFailures(fn func(s *Simulator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Simulator) EntryTran(_ context.Context, args domain.EntryTranArgs) (domain.EntryTranResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.EntryTran++
	if s.EntryTranErr != nil {
		return domain.EntryTranResult{}, s.EntryTranErr
	}
	if _, exists := s.trades[args.OrderID]; exists {
		return domain.EntryTranResult{}, gmoError("E01", "E01040010", "order id already used")
	}

	trade := &domain.Trade{
		OrderID:    args.OrderID,
		Status:     domain.TradeStatusUnprocessed,
		JobCd:      args.JobCd,
		AccessID:   uuid.NewString(),
		AccessPass: uuid.NewString(),
		Amount:     args.Amount,
	}
	s.trades[args.OrderID] = trade
	s.byAccess[trade.AccessID] = args.OrderID
	return domain.EntryTranResult{AccessID: trade.AccessID, AccessPass: trade.AccessPass}, nil
}

func (s *Simulator) ExecTran(_ context.Context, args domain.ExecTranArgs) (domain.ExecTranResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.ExecTran++
	if s.ExecTranErr != nil {
		return domain.ExecTranResult{}, s.ExecTranErr
	}
	trade, err := s.byAccessLocked(args.AccessID, args.AccessPass)
	if err != nil {
		return domain.ExecTranResult{}, err
	}
	if trade.Status != domain.TradeStatusUnprocessed {
		return domain.ExecTranResult{}, gmoError("E01", "E01050004", "trade already executed")
	}

	stamp(trade, domain.TradeStatus(trade.JobCd))
	return domain.ExecTranResult{
		Forward:  trade.Forward,
		Method:   args.Method,
		Approve:  trade.Approve,
		TranID:   trade.TranID,
		TranDate: trade.TranDate,
	}, nil
}

func (s *Simulator) AlterTran(_ context.Context, args domain.AlterTranArgs) (domain.AlterTranResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.AlterTran++
	if s.AlterTranErr != nil {
		return domain.AlterTranResult{}, s.AlterTranErr
	}
	trade, err := s.byAccessLocked(args.AccessID, args.AccessPass)
	if err != nil {
		return domain.AlterTranResult{}, err
	}

	switch args.JobCd {
	case domain.JobCdSales:
		if trade.Status != domain.TradeStatusAuth {
			return domain.AlterTranResult{}, gmoError("M01", "M01004012", fmt.Sprintf("cannot capture trade in status %s", trade.Status))
		}
		if args.Amount > 0 {
			trade.Amount = args.Amount
		}
	case domain.JobCdVoid:
		if trade.Status != domain.TradeStatusAuth && trade.Status != domain.TradeStatusSales && trade.Status != domain.TradeStatusCapture {
			return domain.AlterTranResult{}, gmoError("M01", "M01004012", fmt.Sprintf("cannot void trade in status %s", trade.Status))
		}
	default:
		return domain.AlterTranResult{}, gmoError("E01", "E01060010", fmt.Sprintf("unsupported job code %s", args.JobCd))
	}

	trade.JobCd = args.JobCd
	stamp(trade, domain.TradeStatus(args.JobCd))
	return domain.AlterTranResultFromTrade(*trade), nil
}

func (s *Simulator) ChangeTran(_ context.Context, args domain.ChangeTranArgs) (domain.AlterTranResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.ChangeTran++
	if s.ChangeTranErr != nil {
		return domain.AlterTranResult{}, s.ChangeTranErr
	}
	trade, err := s.byAccessLocked(args.AccessID, args.AccessPass)
	if err != nil {
		return domain.AlterTranResult{}, err
	}
	if trade.Status != domain.TradeStatusAuth && trade.Status != domain.TradeStatusSales && trade.Status != domain.TradeStatusCapture {
		return domain.AlterTranResult{}, gmoError("M01", "M01004012", fmt.Sprintf("cannot change trade in status %s", trade.Status))
	}

	trade.Amount = args.Amount
	trade.JobCd = args.JobCd
	stamp(trade, domain.TradeStatus(args.JobCd))
	return domain.AlterTranResultFromTrade(*trade), nil
}

func (s *Simulator) SearchTrade(_ context.Context, args domain.SearchTradeArgs) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.SearchTrade++
	if s.SearchTradeErr != nil {
		return domain.Trade{}, s.SearchTradeErr
	}
	trade, ok := s.trades[args.OrderID]
	if !ok {
		return domain.Trade{}, gmoError("E01", "E01110002", "trade not found")
	}
	return *trade, nil
}

func (s *Simulator) byAccessLocked(accessID, accessPass string) (*domain.Trade, error) {
	orderID, ok := s.byAccess[accessID]
	if !ok {
		return nil, gmoError("E01", "E01110002", "access id not found")
	}
	trade := s.trades[orderID]
	if trade.AccessPass != accessPass {
		return nil, gmoError("E01", "E01110002", "access pass mismatch")
	}
	return trade, nil
}

func stamp(trade *domain.Trade, status domain.TradeStatus) {
	trade.Status = status
	trade.Forward = "2a99662"
	trade.Approve = strings.ToUpper(uuid.NewString()[:7])
	trade.TranID = uuid.NewString()
	trade.TranDate = time.Now().UTC().Format("20060102150405")
}

func gmoError(code, info, message string) error {
	return &domain.ExternalError{Service: ServiceName, StatusCode: 200, Name: code, Message: info + ": " + message}
}

var _ domain.CreditCardGateway = (*Simulator)(nil)
