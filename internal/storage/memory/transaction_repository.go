package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// transactionRepositoryInMemory: in-memory хранилище транзакций.
// Все переходы выполняются под мьютексом как условные обновления по статусу.
type transactionRepositoryInMemory struct {
	mu          sync.RWMutex
	items       map[string]domain.Transaction
	exportingAt map[string]time.Time
}

// NewTransactionRepository возвращает in-memory хранилище транзакций.
func NewTransactionRepository() *transactionRepositoryInMemory {
	return &transactionRepositoryInMemory{
		items:       make(map[string]domain.Transaction),
		exportingAt: make(map[string]time.Time),
	}
}

// Start сохраняет транзакцию в статусе InProgress.
// Для возврата действует уникальность по object.transaction среди неотменённых возвратов.
func (r *transactionRepositoryInMemory) Start(_ context.Context, tx domain.Transaction) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.TypeOf == domain.TransactionTypeReturnOrder && tx.Object.Transaction != nil {
		for _, existing := range r.items {
			if existing.TypeOf == domain.TransactionTypeReturnOrder &&
				existing.Status != domain.TransactionStatusCanceled &&
				existing.Object.Transaction != nil &&
				existing.Object.Transaction.ID == tx.Object.Transaction.ID {
				return domain.Transaction{}, domain.AlreadyInUse("transaction", []string{"object.transaction"}, "duplicate return transaction")
			}
		}
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, exists := r.items[tx.ID]; exists {
		return domain.Transaction{}, domain.AlreadyInUse("transaction", []string{"id"}, "duplicate transaction id")
	}
	if tx.StartDate.IsZero() {
		tx.StartDate = time.Now().UTC()
	}
	tx.Status = domain.TransactionStatusInProgress
	tx.TasksExportationStatus = domain.TasksUnexported
	r.items[tx.ID] = tx
	return tx, nil
}

// FindByID возвращает транзакцию заданного вида.
func (r *transactionRepositoryInMemory) FindByID(_ context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.items[id]
	if !ok || tx.TypeOf != typeOf {
		return domain.Transaction{}, domain.NotFound("transaction")
	}
	return tx, nil
}

// FindInProgressByID возвращает транзакцию, только если она в статусе InProgress.
func (r *transactionRepositoryInMemory) FindInProgressByID(_ context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.items[id]
	if !ok || tx.TypeOf != typeOf || tx.Status != domain.TransactionStatusInProgress {
		return domain.Transaction{}, domain.NotFound("transaction")
	}
	return tx, nil
}

// SetCustomerContact сохраняет контакты покупателя в транзакции InProgress.
func (r *transactionRepositoryInMemory) SetCustomerContact(_ context.Context, typeOf domain.TransactionType, id string, contact domain.CustomerContact) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok || tx.TypeOf != typeOf || tx.Status != domain.TransactionStatusInProgress {
		return domain.Transaction{}, domain.NotFound("transaction")
	}
	tx.Object.CustomerContact = &contact
	r.items[id] = tx
	return tx, nil
}

// Confirm атомарно подтверждает транзакцию.
func (r *transactionRepositoryInMemory) Confirm(_ context.Context, params domain.ConfirmParams) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[params.ID]
	if !ok || tx.TypeOf != params.TypeOf {
		return domain.Transaction{}, domain.NotFound("transaction")
	}
	switch tx.Status {
	case domain.TransactionStatusInProgress:
	case domain.TransactionStatusConfirmed:
		return domain.Transaction{}, domain.AlreadyInUse("transaction", []string{"status"}, "Transaction already confirmed.")
	default:
		return domain.Transaction{}, domain.NotFound("transaction")
	}

	now := time.Now().UTC()
	result := params.Result
	potentialActions := params.PotentialActions
	tx.Status = domain.TransactionStatusConfirmed
	tx.EndDate = &now
	tx.Result = &result
	tx.PotentialActions = &potentialActions
	if params.AuthorizeActions != nil {
		tx.Object.AuthorizeActions = params.AuthorizeActions
	}
	r.items[tx.ID] = tx
	return tx, nil
}

// Cancel переводит транзакцию InProgress в Canceled.
func (r *transactionRepositoryInMemory) Cancel(_ context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok || tx.TypeOf != typeOf || tx.Status != domain.TransactionStatusInProgress {
		return domain.Transaction{}, domain.NotFound("transaction")
	}
	now := time.Now().UTC()
	tx.Status = domain.TransactionStatusCanceled
	tx.EndDate = &now
	r.items[id] = tx
	return tx, nil
}

// MakeExpired переводит просроченные транзакции в Expired.
func (r *transactionRepositoryInMemory) MakeExpired(_ context.Context, now time.Time) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.Transaction
	for id, tx := range r.items {
		if tx.Status != domain.TransactionStatusInProgress || !tx.Expires.Before(now) {
			continue
		}
		end := now
		tx.Status = domain.TransactionStatusExpired
		tx.EndDate = &end
		r.items[id] = tx
		expired = append(expired, tx)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].StartDate.Before(expired[j].StartDate) })
	return expired, nil
}

// StartExportTasks захватывает самую старую транзакцию, ожидающую экспорта задач.
func (r *transactionRepositoryInMemory) StartExportTasks(_ context.Context, typeOf domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidate *domain.Transaction
	for _, tx := range r.items {
		if tx.TypeOf != typeOf || tx.Status != status || tx.TasksExportationStatus != domain.TasksUnexported {
			continue
		}
		if candidate == nil || tx.StartDate.Before(candidate.StartDate) {
			c := tx
			candidate = &c
		}
	}
	if candidate == nil {
		return nil, nil
	}

	candidate.TasksExportationStatus = domain.TasksExporting
	r.items[candidate.ID] = *candidate
	r.exportingAt[candidate.ID] = time.Now().UTC()
	return candidate, nil
}

// SetTasksExportedByID отмечает завершение экспорта задач.
func (r *transactionRepositoryInMemory) SetTasksExportedByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok {
		return domain.NotFound("transaction")
	}
	now := time.Now().UTC()
	tx.TasksExportationStatus = domain.TasksExported
	tx.TasksExportedAt = &now
	r.items[id] = tx
	delete(r.exportingAt, id)
	return nil
}

// ReexportTasks возвращает в очередь экспорта транзакции, зависшие в Exporting.
func (r *transactionRepositoryInMemory) ReexportTasks(_ context.Context, interval time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := time.Now().UTC().Add(-interval)
	count := 0
	for id, startedAt := range r.exportingAt {
		if startedAt.After(threshold) {
			continue
		}
		tx := r.items[id]
		tx.TasksExportationStatus = domain.TasksUnexported
		r.items[id] = tx
		delete(r.exportingAt, id)
		count++
	}
	return count, nil
}

var _ domain.TransactionRepository = (*transactionRepositoryInMemory)(nil)
