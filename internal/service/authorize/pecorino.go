package authorize

import (
	"context"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const (
	defaultPaymentNotes = "ticket purchase"
	defaultAwardNotes   = "ticket purchase award"
)

// PecorinoPaymentParams: оплата заказа баллами со счёта покупателя.
type PecorinoPaymentParams struct {
	AgentID           string
	TransactionID     string
	Amount            int
	FromAccountNumber string
	Notes             string
}

// PecorinoAwardParams: начисление бонусных баллов за заказ.
type PecorinoAwardParams struct {
	AgentID         string
	TransactionID   string
	Amount          int
	ToAccountNumber string
	Notes           string
}

// CreatePecorinoPayment открывает транзакцию Pay в журнале баллов.
// Транзакция живёт на месяц дольше самой транзакции заказа: подтверждается она позже, задачей.
func (s *Service) CreatePecorinoPayment(ctx context.Context, p PecorinoPaymentParams) (domain.Action, error) {
	tx, err := s.inProgress(ctx, p.AgentID, p.TransactionID)
	if err != nil {
		return domain.Action{}, err
	}
	if p.Amount <= 0 {
		return domain.Action{}, domain.Argument("amount", "Amount must be positive.")
	}
	if p.FromAccountNumber == "" {
		return domain.Action{}, domain.Argument("fromAccountNumber", "Account number is required.")
	}
	notes := p.Notes
	if notes == "" {
		notes = defaultPaymentNotes
	}

	attrs := domain.ActionAttributes{
		TypeOf: domain.ActionTypeAuthorize,
		Object: domain.PecorinoPaymentObject{
			TransactionID:     tx.ID,
			Amount:            p.Amount,
			FromAccountNumber: p.FromAccountNumber,
			Notes:             notes,
		},
		Agent:     tx.Agent,
		Recipient: tx.Seller,
		Purpose:   tx.Ref(),
	}

	endpoint := s.pecorino.Endpoint()
	return s.authorize(ctx, attrs, func(ctx context.Context) (domain.ActionResult, error) {
		ptx, err := s.pecorino.Service(domain.PecorinoPay, endpoint).Start(ctx, domain.PecorinoStartParams{
			Expires:           tx.Expires.AddDate(0, 1, 0),
			Agent:             pecorinoParty(tx.Agent),
			Recipient:         pecorinoParty(tx.Seller),
			Amount:            p.Amount,
			Notes:             notes,
			FromAccountNumber: p.FromAccountNumber,
		})
		if err != nil {
			return nil, err
		}
		return domain.PecorinoPaymentResult{
			Price:               p.Amount,
			Amount:              p.Amount,
			PecorinoTransaction: ptx,
			PecorinoEndpoint:    endpoint,
		}, nil
	}, nil)
}

// CancelPecorinoPayment отзывает авторизацию и отменяет транзакцию в журнале баллов.
func (s *Service) CancelPecorinoPayment(ctx context.Context, agentID, transactionID, actionID string) error {
	return s.cancel(ctx, agentID, transactionID, actionID, domain.ObjectTypePecorinoPayment,
		func(ctx context.Context, action domain.Action) error {
			result, ok := domain.ResultAs[domain.PecorinoPaymentResult](action)
			if !ok {
				return domain.NotFound("action.result")
			}
			ptx := result.PecorinoTransaction
			return s.pecorino.Service(ptx.TypeOf, result.PecorinoEndpoint).Cancel(ctx, ptx.ID)
		})
}

// CreatePecorinoAward открывает депозит бонусных баллов на счёт участника программы.
// Нужны членство покупателя и действующая программа с привилегией PecorinoPayment.
func (s *Service) CreatePecorinoAward(ctx context.Context, p PecorinoAwardParams) (domain.Action, error) {
	tx, err := s.inProgress(ctx, p.AgentID, p.TransactionID)
	if err != nil {
		return domain.Action{}, err
	}
	if tx.Agent.MemberOf == nil || tx.Agent.MemberOf.MembershipNumber == "" {
		return domain.Action{}, domain.Forbidden("Membership required")
	}
	if p.Amount <= 0 {
		return domain.Action{}, domain.Argument("amount", "Amount must be positive.")
	}
	if p.ToAccountNumber == "" {
		return domain.Action{}, domain.Argument("toAccountNumber", "Account number is required.")
	}

	memberships, err := s.ownership.SearchProgramMemberships(ctx, tx.Agent.MemberOf.MembershipNumber, s.now())
	if err != nil {
		return domain.Action{}, err
	}
	if !anyHasAward(memberships, domain.AwardPecorinoPayment) {
		return domain.Action{}, domain.Forbidden("Membership program requirements not satisfied")
	}

	notes := p.Notes
	if notes == "" {
		notes = defaultAwardNotes
	}

	attrs := domain.ActionAttributes{
		TypeOf: domain.ActionTypeAuthorize,
		Object: domain.PecorinoAwardObject{
			TransactionID:   tx.ID,
			Amount:          p.Amount,
			ToAccountNumber: p.ToAccountNumber,
		},
		Agent:     tx.Seller,
		Recipient: tx.Agent,
		Purpose:   tx.Ref(),
	}

	endpoint := s.pecorino.Endpoint()
	return s.authorize(ctx, attrs, func(ctx context.Context) (domain.ActionResult, error) {
		ptx, err := s.pecorino.Service(domain.PecorinoDeposit, endpoint).Start(ctx, domain.PecorinoStartParams{
			Expires:         tx.Expires.AddDate(0, 1, 0),
			Agent:           pecorinoParty(tx.Seller),
			Recipient:       pecorinoParty(tx.Agent),
			Amount:          p.Amount,
			Notes:           notes,
			AccountType:     domain.PecorinoAccountTypePoint,
			ToAccountNumber: p.ToAccountNumber,
		})
		if err != nil {
			return nil, err
		}
		// Бонус не участвует в оплате заказа.
		return domain.PecorinoAwardResult{
			Price:               0,
			Amount:              p.Amount,
			PecorinoTransaction: ptx,
			PecorinoEndpoint:    endpoint,
		}, nil
	}, nil)
}

// CancelPecorinoAward отзывает начисление и отменяет депозит.
func (s *Service) CancelPecorinoAward(ctx context.Context, agentID, transactionID, actionID string) error {
	return s.cancel(ctx, agentID, transactionID, actionID, domain.ObjectTypePecorinoAward,
		func(ctx context.Context, action domain.Action) error {
			result, ok := domain.ResultAs[domain.PecorinoAwardResult](action)
			if !ok {
				return domain.NotFound("action.result")
			}
			return s.pecorino.Service(domain.PecorinoDeposit, result.PecorinoEndpoint).Cancel(ctx, result.PecorinoTransaction.ID)
		})
}

func anyHasAward(memberships []domain.OwnershipInfo, award string) bool {
	for _, m := range memberships {
		if m.HasAward(award) {
			return true
		}
	}
	return false
}
