package coa

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// Calls: счётчики вызовов симулятора.
type Calls struct {
	Hold    int
	Release int
}

// Simulator: in-memory система брони мест.
// Место может быть занято только одной бронью на сеанс.
type Simulator struct {
	mu    sync.Mutex
	seq   int
	holds map[string]domain.SeatHoldRequest
	taken map[string]string
	calls Calls

	HoldErr    error
	ReleaseErr error
}

func NewSimulator() *Simulator {
	return &Simulator{
		holds: make(map[string]domain.SeatHoldRequest),
		taken: make(map[string]string),
	}
}

func (s *Simulator) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ActiveHolds возвращает число неснятых броней.
func (s *Simulator) ActiveHolds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

func (s *Simulator) SetFailures(fn func(s *Simulator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Simulator) Hold(_ context.Context, req domain.SeatHoldRequest) (domain.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Hold++
	if s.HoldErr != nil {
		return domain.SeatHold{}, s.HoldErr
	}
	if len(req.Seats) == 0 {
		return domain.SeatHold{}, domain.Argument("seats", "at least one seat is required")
	}
	for _, seat := range req.Seats {
		if _, busy := s.taken[seatKey(req, seat)]; busy {
			return domain.SeatHold{}, domain.AlreadyInUse("seat", []string{seat}, "seat already held")
		}
	}

	s.seq++
	number := fmt.Sprintf("%08d", s.seq)
	for _, seat := range req.Seats {
		s.taken[seatKey(req, seat)] = number
	}
	s.holds[number] = req
	return domain.SeatHold{HoldNumber: number, Seats: append([]string(nil), req.Seats...)}, nil
}

func (s *Simulator) Release(_ context.Context, _ domain.SeatHoldRequest, holdNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Release++
	if s.ReleaseErr != nil {
		return s.ReleaseErr
	}
	req, ok := s.holds[holdNumber]
	if !ok {
		return nil
	}
	for _, seat := range req.Seats {
		delete(s.taken, seatKey(req, seat))
	}
	delete(s.holds, holdNumber)
	return nil
}

func seatKey(req domain.SeatHoldRequest, seat string) string {
	return req.TheaterCode + "/" + req.EventIdentifier + "/" + seat
}

var _ domain.SeatReservationGateway = (*Simulator)(nil)
