package pecorino

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// SimulatorEndpoint: endpoint, который симулятор записывает в результаты авторизаций.
const SimulatorEndpoint = "simulator://pecorino"

type txState string

const (
	txStarted   txState = "Started"
	txConfirmed txState = "Confirmed"
	txCanceled  txState = "Canceled"
)

type simulatedTx struct {
	tx    domain.PecorinoTransaction
	state txState
}

// Calls: счётчики вызовов по виду транзакции.
type Calls struct {
	Start   int
	Confirm int
	Cancel  int
}

// Simulator: in-memory журнал баллов со счетами и транзакциями.
// Confirm и Cancel повторно для того же состояния ничего не делают.
type Simulator struct {
	mu       sync.Mutex
	accounts map[string]int
	txs      map[string]*simulatedTx
	calls    map[domain.PecorinoTransactionType]*Calls

	// StartErr, ConfirmErr, CancelErr возвращаются до изменения состояния.
	StartErr   error
	ConfirmErr error
	CancelErr  error
}

// NewSimulator возвращает пустой журнал баллов.
func NewSimulator() *Simulator {
	return &Simulator{
		accounts: make(map[string]int),
		txs:      make(map[string]*simulatedTx),
		calls:    make(map[domain.PecorinoTransactionType]*Calls),
	}
}

// OpenAccount открывает счёт с начальным балансом.
func (s *Simulator) OpenAccount(accountNumber string, balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountNumber] = balance
}

// Balance возвращает баланс счёта.
func (s *Simulator) Balance(accountNumber string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[accountNumber]
}

// Calls возвращает счётчики для вида транзакции.
func (s *Simulator) Calls(kind domain.PecorinoTransactionType) Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calls[kind]; ok {
		return *c
	}
	return Calls{}
}

// Transactions возвращает снимки транзакций вида kind.
func (s *Simulator) Transactions(kind domain.PecorinoTransactionType) []domain.PecorinoTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PecorinoTransaction, 0)
	for _, st := range s.txs {
		if st.tx.TypeOf == kind {
			out = append(out, st.tx)
		}
	}
	return out
}

// State возвращает состояние транзакции: Started, Confirmed, Canceled или "" для неизвестной.
func (s *Simulator) State(transactionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.txs[transactionID]; ok {
		return string(st.state)
	}
	return ""
}

// SetFailures задаёт ошибки под мьютексом.
func (s *Simulator) SetFailures(fn func(s *Simulator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Simulator) Endpoint() string {
	return SimulatorEndpoint
}

func (s *Simulator) Service(kind domain.PecorinoTransactionType, _ string) domain.PecorinoTransactionService {
	return &simulatedService{sim: s, kind: kind}
}

func (s *Simulator) counter(kind domain.PecorinoTransactionType) *Calls {
	c, ok := s.calls[kind]
	if !ok {
		c = &Calls{}
		s.calls[kind] = c
	}
	return c
}

// available: баланс счёта за вычетом открытых списаний.
func (s *Simulator) available(accountNumber string) int {
	balance := s.accounts[accountNumber]
	for _, st := range s.txs {
		if st.state == txStarted && st.tx.Object.FromAccountNumber == accountNumber {
			balance -= st.tx.Object.Amount
		}
	}
	return balance
}

type simulatedService struct {
	sim  *Simulator
	kind domain.PecorinoTransactionType
}

func (ss *simulatedService) Start(_ context.Context, params domain.PecorinoStartParams) (domain.PecorinoTransaction, error) {
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter(ss.kind).Start++
	if s.StartErr != nil {
		return domain.PecorinoTransaction{}, s.StartErr
	}
	if params.Amount <= 0 {
		return domain.PecorinoTransaction{}, domain.Argument("amount", "amount must be positive")
	}

	switch ss.kind {
	case domain.PecorinoPay, domain.PecorinoWithdraw, domain.PecorinoTransfer:
		if _, ok := s.accounts[params.FromAccountNumber]; !ok {
			return domain.PecorinoTransaction{}, domain.NotFound("account " + params.FromAccountNumber)
		}
		if s.available(params.FromAccountNumber) < params.Amount {
			return domain.PecorinoTransaction{}, domain.Forbidden(fmt.Sprintf("insufficient balance on account %s", params.FromAccountNumber))
		}
	}
	switch ss.kind {
	case domain.PecorinoDeposit, domain.PecorinoTransfer:
		if _, ok := s.accounts[params.ToAccountNumber]; !ok {
			return domain.PecorinoTransaction{}, domain.NotFound("account " + params.ToAccountNumber)
		}
	}

	tx := domain.PecorinoTransaction{
		ID:        uuid.NewString(),
		TypeOf:    ss.kind,
		Agent:     params.Agent,
		Recipient: params.Recipient,
		Object: domain.PecorinoTransactionObject{
			Amount:            params.Amount,
			FromAccountNumber: params.FromAccountNumber,
			ToAccountNumber:   params.ToAccountNumber,
			Notes:             params.Notes,
			AccountType:       params.AccountType,
		},
		Expires: params.Expires,
	}
	s.txs[tx.ID] = &simulatedTx{tx: tx, state: txStarted}
	return tx, nil
}

func (ss *simulatedService) Confirm(_ context.Context, transactionID string) error {
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter(ss.kind).Confirm++
	if s.ConfirmErr != nil {
		return s.ConfirmErr
	}
	st, err := ss.lookup(transactionID)
	if err != nil {
		return err
	}
	switch st.state {
	case txConfirmed:
		return nil
	case txCanceled:
		return domain.Argument("transaction", "transaction already canceled")
	}

	obj := st.tx.Object
	if obj.FromAccountNumber != "" {
		s.accounts[obj.FromAccountNumber] -= obj.Amount
	}
	if obj.ToAccountNumber != "" {
		s.accounts[obj.ToAccountNumber] += obj.Amount
	}
	st.state = txConfirmed
	return nil
}

func (ss *simulatedService) Cancel(_ context.Context, transactionID string) error {
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter(ss.kind).Cancel++
	if s.CancelErr != nil {
		return s.CancelErr
	}
	st, err := ss.lookup(transactionID)
	if err != nil {
		return err
	}
	switch st.state {
	case txCanceled:
		return nil
	case txConfirmed:
		return domain.Argument("transaction", "transaction already confirmed")
	}
	st.state = txCanceled
	return nil
}

func (ss *simulatedService) lookup(transactionID string) (*simulatedTx, error) {
	st, ok := ss.sim.txs[transactionID]
	if !ok || st.tx.TypeOf != ss.kind {
		return nil, domain.NotFound("pecorino transaction")
	}
	return st, nil
}

var _ domain.PecorinoGateway = (*Simulator)(nil)
