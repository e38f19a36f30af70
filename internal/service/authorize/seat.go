package authorize

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// SeatReservationParams: запрос временной брони мест.
type SeatReservationParams struct {
	AgentID       string
	TransactionID string
	Event         domain.ScreeningEvent
	Offers        []domain.SeatOffer
}

// ChangeOffersParams меняет виды билетов в существующей брони без смены мест.
type ChangeOffersParams struct {
	AgentID       string
	TransactionID string
	ActionID      string
	Event         domain.ScreeningEvent
	Offers        []domain.SeatOffer
}

// CreateSeatReservation бронирует места во внешней системе.
// Бронь делает продавец в пользу покупателя.
func (s *Service) CreateSeatReservation(ctx context.Context, p SeatReservationParams) (domain.Action, error) {
	tx, err := s.inProgress(ctx, p.AgentID, p.TransactionID)
	if err != nil {
		return domain.Action{}, err
	}
	if err := validateSeatOffers(p.Event, p.Offers); err != nil {
		return domain.Action{}, err
	}

	object := domain.SeatReservationObject{Event: p.Event, Offers: p.Offers}
	attrs := domain.ActionAttributes{
		TypeOf:    domain.ActionTypeAuthorize,
		Object:    object,
		Agent:     tx.Seller,
		Recipient: tx.Agent,
		Purpose:   tx.Ref(),
	}
	req := domain.SeatHoldRequest{
		TheaterCode:     p.Event.TheaterCode,
		EventIdentifier: p.Event.Identifier,
		Seats:           seatKeys(p.Offers),
	}

	return s.authorize(ctx, attrs, func(ctx context.Context) (domain.ActionResult, error) {
		hold, err := s.seats.Hold(ctx, req)
		if err != nil {
			return nil, err
		}
		return domain.SeatReservationResult{
			Price:       offersPrice(p.Offers),
			HoldRequest: req,
			Hold:        hold,
		}, nil
	}, nil)
}

// CancelSeatReservation отзывает бронь и снимает её во внешней системе.
func (s *Service) CancelSeatReservation(ctx context.Context, agentID, transactionID, actionID string) error {
	return s.cancel(ctx, agentID, transactionID, actionID, domain.ObjectTypeSeatReservation,
		func(ctx context.Context, action domain.Action) error {
			result, ok := domain.ResultAs[domain.SeatReservationResult](action)
			if !ok {
				return domain.NotFound("action.result")
			}
			return s.seats.Release(ctx, result.HoldRequest, result.Hold.HoldNumber)
		})
}

// ChangeSeatOffers заменяет предложения по тем же местам и пересчитывает цену.
func (s *Service) ChangeSeatOffers(ctx context.Context, p ChangeOffersParams) (domain.Action, error) {
	if _, err := s.inProgress(ctx, p.AgentID, p.TransactionID); err != nil {
		return domain.Action{}, err
	}

	action, err := s.ledger.FindByID(ctx, domain.ActionTypeAuthorize, p.ActionID)
	if err != nil {
		return domain.Action{}, err
	}
	current, ok := domain.ObjectAs[domain.SeatReservationObject](action.ActionAttributes)
	if !ok || action.ActionStatus != domain.ActionStatusCompleted || action.TransactionID() != p.TransactionID {
		return domain.Action{}, domain.NotFound("authorizeAction")
	}
	result, ok := domain.ResultAs[domain.SeatReservationResult](action)
	if !ok {
		return domain.Action{}, domain.NotFound("action.result")
	}

	if p.Event.Identifier != current.Event.Identifier {
		return domain.Action{}, domain.Argument("event", "Event not matched.")
	}
	if err := validateSeatOffers(current.Event, p.Offers); err != nil {
		return domain.Action{}, err
	}
	if !sameSeats(current.Offers, p.Offers) {
		return domain.Action{}, domain.Argument("offers", "seatNumber not matched.")
	}

	object := domain.SeatReservationObject{Event: current.Event, Offers: p.Offers}
	result.Price = offersPrice(p.Offers)
	return s.ledger.UpdateObjectAndResultByID(ctx, p.ActionID, p.TransactionID, object, result)
}

func validateSeatOffers(event domain.ScreeningEvent, offers []domain.SeatOffer) error {
	if event.Identifier == "" || event.TheaterCode == "" {
		return domain.Argument("event", "Event identifier and theater code are required.")
	}
	if len(offers) == 0 {
		return domain.Argument("offers", "At least one offer is required.")
	}
	seen := make(map[string]struct{}, len(offers))
	for _, offer := range offers {
		if offer.SeatSection == "" || offer.SeatNumber == "" {
			return domain.Argument("offers", "Seat section and number are required.")
		}
		if offer.Price < 0 {
			return domain.Argument("offers", "Offer price must not be negative.")
		}
		key := offer.SeatKey()
		if _, dup := seen[key]; dup {
			return domain.Argument("offers", fmt.Sprintf("Seat %s is specified twice.", key))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func seatKeys(offers []domain.SeatOffer) []string {
	keys := make([]string, 0, len(offers))
	for _, offer := range offers {
		keys = append(keys, offer.SeatKey())
	}
	return keys
}

func offersPrice(offers []domain.SeatOffer) int {
	total := 0
	for _, offer := range offers {
		total += offer.Price
	}
	return total
}

func sameSeats(a, b []domain.SeatOffer) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := seatKeys(a), seatKeys(b)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
