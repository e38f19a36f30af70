package authorize

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/gmo"
)

// DefaultCreditCardMethod: разовый платёж.
const DefaultCreditCardMethod = "1"

// CreditCardParams: запрос авторизации кредитной карты.
type CreditCardParams struct {
	AgentID       string
	TransactionID string
	OrderID       string
	Amount        int
	Method        string
	CreditCard    domain.CreditCardInput
}

// CreateCreditCard регистрирует сделку в GMO и авторизует сумму (JobCd AUTH).
func (s *Service) CreateCreditCard(ctx context.Context, p CreditCardParams) (domain.Action, error) {
	tx, err := s.inProgress(ctx, p.AgentID, p.TransactionID)
	if err != nil {
		return domain.Action{}, err
	}
	if p.OrderID == "" {
		return domain.Action{}, domain.Argument("orderId", "Order ID is required.")
	}
	if p.Amount <= 0 {
		return domain.Action{}, domain.Argument("amount", "Amount must be positive.")
	}
	card := p.CreditCard
	if card.Token == "" && (card.MemberID == "" || card.CardSeq == "") {
		return domain.Action{}, domain.Argument("creditCard", "Token or member card is required.")
	}
	method := p.Method
	if method == "" {
		method = DefaultCreditCardMethod
	}

	org, err := s.seller(ctx, tx)
	if err != nil {
		return domain.Action{}, err
	}
	if org.GMOInfo == nil {
		return domain.Action{}, domain.NotFound("seller.gmoInfo")
	}

	attrs := domain.ActionAttributes{
		TypeOf: domain.ActionTypeAuthorize,
		Object: domain.CreditCardObject{
			OrderID:    p.OrderID,
			Amount:     p.Amount,
			Method:     method,
			CreditCard: card,
		},
		Agent:     tx.Agent,
		Recipient: tx.Seller,
		Purpose:   tx.Ref(),
	}

	entryArgs := domain.EntryTranArgs{
		ShopID:   org.GMOInfo.ShopID,
		ShopPass: org.GMOInfo.ShopPass,
		OrderID:  p.OrderID,
		JobCd:    domain.JobCdAuth,
		Amount:   p.Amount,
	}

	return s.authorize(ctx, attrs, func(ctx context.Context) (domain.ActionResult, error) {
		entry, err := s.creditCards.EntryTran(ctx, entryArgs)
		if err != nil {
			return nil, err
		}
		execArgs := domain.ExecTranArgs{
			AccessID:   entry.AccessID,
			AccessPass: entry.AccessPass,
			OrderID:    p.OrderID,
			Method:     method,
			Token:      card.Token,
		}
		if card.Token == "" {
			execArgs.SiteID = s.site.ID
			execArgs.SitePass = s.site.Pass
			execArgs.MemberID = card.MemberID
			execArgs.CardSeq = card.CardSeq
		}
		exec, err := s.creditCards.ExecTran(ctx, execArgs)
		if err != nil {
			return nil, err
		}
		return domain.CreditCardAuthResult{
			Price:          p.Amount,
			Amount:         p.Amount,
			EntryTranArgs:  entryArgs,
			EntryTran:      entry,
			ExecTranArgs:   execArgs,
			ExecTranResult: exec,
		}, nil
	}, normalizeCreditCardError)
}

// CancelCreditCard отзывает авторизацию и отменяет сделку (JobCd VOID).
func (s *Service) CancelCreditCard(ctx context.Context, agentID, transactionID, actionID string) error {
	return s.cancel(ctx, agentID, transactionID, actionID, domain.ObjectTypeCreditCard,
		func(ctx context.Context, action domain.Action) error {
			result, ok := domain.ResultAs[domain.CreditCardAuthResult](action)
			if !ok {
				return domain.NotFound("action.result")
			}
			_, err := s.creditCards.AlterTran(ctx, domain.AlterTranArgs{
				ShopID:     result.EntryTranArgs.ShopID,
				ShopPass:   result.EntryTranArgs.ShopPass,
				AccessID:   result.EntryTran.AccessID,
				AccessPass: result.EntryTran.AccessPass,
				JobCd:      domain.JobCdVoid,
			})
			return err
		})
}

// normalizeCreditCardError переводит бизнес-отказы GMO в доменные ошибки.
// Транспортные сбои и 5xx остаются как есть: их повторяет вызывающий.
func normalizeCreditCardError(err error) error {
	codes, ok := gmo.ErrInfo(err)
	if !ok {
		return err
	}
	for _, code := range codes {
		switch code {
		case "E92000001", "E92000002":
			return errors.Join(domain.RateLimitExceeded("Transaction rate limit exceeded."), err)
		case "E01040010":
			return errors.Join(domain.AlreadyInUse("action.object", []string{"orderId"}, "Order ID already used."), err)
		}
	}
	return errors.Join(domain.Argument("payment", err.Error()), err)
}
