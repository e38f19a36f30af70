package authorize

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// MvtkParams: применение ваучеров mvtk к забронированным местам.
type MvtkParams struct {
	AgentID       string
	TransactionID string
	Tickets       []domain.MvtkTicket
}

// CreateMvtk фиксирует ваучеры как скидку на места брони той же транзакции.
// Внешнего резерва у ваучеров нет: погашение выполняет задача UseMvtk.
func (s *Service) CreateMvtk(ctx context.Context, p MvtkParams) (domain.Action, error) {
	tx, err := s.inProgress(ctx, p.AgentID, p.TransactionID)
	if err != nil {
		return domain.Action{}, err
	}
	if len(p.Tickets) == 0 {
		return domain.Action{}, domain.Argument("tickets", "At least one ticket is required.")
	}

	authorizations, err := s.ledger.FindAuthorizeByTransactionID(ctx, tx.ID)
	if err != nil {
		return domain.Action{}, err
	}
	reservations := domain.CompletedAuthorizeActions(authorizations, domain.ObjectTypeSeatReservation)
	if len(reservations) == 0 {
		return domain.Action{}, domain.Argument("transactionId", "Seat reservation authorization not found.")
	}
	reserved := make(map[string]struct{})
	for _, r := range reservations {
		obj, _ := domain.ObjectAs[domain.SeatReservationObject](r.ActionAttributes)
		for _, offer := range obj.Offers {
			reserved[offer.SeatKey()] = struct{}{}
		}
	}

	price := 0
	for _, ticket := range p.Tickets {
		if ticket.KnyknrNo == "" {
			return domain.Action{}, domain.Argument("tickets", "Voucher number is required.")
		}
		key := domain.SeatOffer{SeatSection: ticket.SeatSection, SeatNumber: ticket.SeatNumber}.SeatKey()
		if _, ok := reserved[key]; !ok {
			return domain.Action{}, domain.Argument("tickets", fmt.Sprintf("Seat %s is not reserved.", key))
		}
		price += ticket.Price
	}

	attrs := domain.ActionAttributes{
		TypeOf:    domain.ActionTypeAuthorize,
		Object:    domain.MvtkObject{TransactionID: tx.ID, Tickets: p.Tickets},
		Agent:     tx.Agent,
		Recipient: tx.Seller,
		Purpose:   tx.Ref(),
	}
	return s.authorize(ctx, attrs, func(context.Context) (domain.ActionResult, error) {
		return domain.MvtkResult{Price: price, Number: len(p.Tickets)}, nil
	}, nil)
}

// CancelMvtk отзывает ваучеры; во внешней системе снимать нечего.
func (s *Service) CancelMvtk(ctx context.Context, agentID, transactionID, actionID string) error {
	return s.cancel(ctx, agentID, transactionID, actionID, domain.ObjectTypeMvtk, nil)
}
