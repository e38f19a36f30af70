package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type actionRecord struct {
	action domain.Action
	seq    int64
}

// actionRepositoryInMemory: in-memory журнал действий.
type actionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]*actionRecord
	seq   int64
}

// NewActionRepository возвращает in-memory журнал действий для тестов и локального запуска.
func NewActionRepository() *actionRepositoryInMemory {
	return &actionRepositoryInMemory{items: make(map[string]*actionRecord)}
}

// Start создаёт действие в статусе Active.
func (r *actionRepositoryInMemory) Start(_ context.Context, attrs domain.ActionAttributes) (domain.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	action := domain.Action{
		ActionAttributes: attrs,
		ID:               uuid.NewString(),
		ActionStatus:     domain.ActionStatusActive,
		StartDate:        time.Now().UTC(),
	}
	r.items[action.ID] = &actionRecord{action: action, seq: r.seq}
	return action, nil
}

// Complete переводит Active действие в Completed.
func (r *actionRepositoryInMemory) Complete(_ context.Context, typeOf domain.ActionType, actionID string, result domain.ActionResult) (domain.Action, error) {
	return r.transitionActive(typeOf, actionID, func(a *domain.Action, now time.Time) {
		a.ActionStatus = domain.ActionStatusCompleted
		a.Result = result
		a.EndDate = &now
	})
}

// Cancel переводит Active действие в Canceled.
func (r *actionRepositoryInMemory) Cancel(_ context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error) {
	return r.transitionActive(typeOf, actionID, func(a *domain.Action, now time.Time) {
		a.ActionStatus = domain.ActionStatusCanceled
		a.EndDate = &now
	})
}

// GiveUp переводит Active действие в Failed.
func (r *actionRepositoryInMemory) GiveUp(_ context.Context, typeOf domain.ActionType, actionID string, actionErr domain.ActionError) (domain.Action, error) {
	return r.transitionActive(typeOf, actionID, func(a *domain.Action, now time.Time) {
		a.ActionStatus = domain.ActionStatusFailed
		a.Error = &actionErr
		a.EndDate = &now
	})
}

func (r *actionRepositoryInMemory) transitionActive(typeOf domain.ActionType, actionID string, apply func(*domain.Action, time.Time)) (domain.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[actionID]
	if !ok || rec.action.TypeOf != typeOf || rec.action.ActionStatus != domain.ActionStatusActive {
		return domain.Action{}, domain.NotFound("action")
	}
	apply(&rec.action, time.Now().UTC())
	return rec.action, nil
}

// CancelAuthorization отзывает завершённую авторизацию транзакции.
func (r *actionRepositoryInMemory) CancelAuthorization(_ context.Context, objectType domain.ObjectType, actionID, transactionID string) (domain.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[actionID]
	if !ok || !isCompletedAuthorization(rec.action, objectType, transactionID) {
		return domain.Action{}, domain.NotFound("authorizeAction")
	}
	now := time.Now().UTC()
	rec.action.ActionStatus = domain.ActionStatusCanceled
	rec.action.EndDate = &now
	return rec.action, nil
}

// UpdateObjectAndResultByID меняет объект и результат завершённой брони мест.
func (r *actionRepositoryInMemory) UpdateObjectAndResultByID(
	_ context.Context,
	actionID, transactionID string,
	object domain.SeatReservationObject,
	result domain.SeatReservationResult,
) (domain.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[actionID]
	if !ok || !isCompletedAuthorization(rec.action, domain.ObjectTypeSeatReservation, transactionID) {
		return domain.Action{}, domain.NotFound("authorizeAction")
	}
	rec.action.Object = object
	rec.action.Result = result
	return rec.action, nil
}

func isCompletedAuthorization(a domain.Action, objectType domain.ObjectType, transactionID string) bool {
	return a.TypeOf == domain.ActionTypeAuthorize &&
		a.ActionStatus == domain.ActionStatusCompleted &&
		a.Object.ObjectType() == objectType &&
		a.Purpose != nil && a.Purpose.ID == transactionID
}

// FindByID возвращает действие заданного вида.
func (r *actionRepositoryInMemory) FindByID(_ context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[actionID]
	if !ok || rec.action.TypeOf != typeOf {
		return domain.Action{}, domain.NotFound("action")
	}
	return rec.action, nil
}

// FindAuthorizeByTransactionID возвращает авторизации транзакции в порядке создания.
func (r *actionRepositoryInMemory) FindAuthorizeByTransactionID(_ context.Context, transactionID string) ([]domain.Action, error) {
	return r.filter(func(a domain.Action) bool {
		return a.TypeOf == domain.ActionTypeAuthorize && a.Purpose != nil && a.Purpose.ID == transactionID
	}, nil), nil
}

// SearchByTransactionID возвращает действия транзакции, опционально сортируя их.
func (r *actionRepositoryInMemory) SearchByTransactionID(_ context.Context, params domain.SearchActionsParams) ([]domain.Action, error) {
	match := func(a domain.Action) bool {
		return a.Purpose != nil && a.Purpose.TypeOf == string(params.TransactionType) && a.Purpose.ID == params.TransactionID
	}
	if params.Sort == nil {
		return r.filter(match, nil), nil
	}
	return r.filter(match, func(x, y domain.Action) int {
		if c := compareTime(x.StartDate, y.StartDate, params.Sort.StartDate); c != 0 {
			return c
		}
		return compareEndDate(x.EndDate, y.EndDate, params.Sort.EndDate)
	}), nil
}

// FindByOrderNumber возвращает действия заказа по убыванию endDate.
func (r *actionRepositoryInMemory) FindByOrderNumber(_ context.Context, orderNumber string) ([]domain.Action, error) {
	return r.filter(func(a domain.Action) bool {
		return a.OrderNumber() == orderNumber
	}, func(x, y domain.Action) int {
		return compareEndDate(x.EndDate, y.EndDate, domain.SortDescending)
	}), nil
}

// All возвращает все действия в порядке создания (используется в тестах).
func (r *actionRepositoryInMemory) All() []domain.Action {
	return r.filter(func(domain.Action) bool { return true }, nil)
}

func (r *actionRepositoryInMemory) filter(match func(domain.Action) bool, cmp func(x, y domain.Action) int) []domain.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]*actionRecord, 0, len(r.items))
	for _, rec := range r.items {
		if match(rec.action) {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if cmp != nil {
			if c := cmp(recs[i].action, recs[j].action); c != 0 {
				return c < 0
			}
		}
		return recs[i].seq < recs[j].seq
	})

	result := make([]domain.Action, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.action)
	}
	return result
}

func compareTime(x, y time.Time, dir domain.SortDirection) int {
	if dir == 0 || x.Equal(y) {
		return 0
	}
	if x.Before(y) {
		return -int(dir)
	}
	return int(dir)
}

// compareEndDate ставит действия без endDate в конец выборки.
func compareEndDate(x, y *time.Time, dir domain.SortDirection) int {
	switch {
	case dir == 0:
		return 0
	case x == nil && y == nil:
		return 0
	case x == nil:
		return 1
	case y == nil:
		return -1
	default:
		return compareTime(*x, *y, dir)
	}
}

var _ domain.ActionRepository = (*actionRepositoryInMemory)(nil)
