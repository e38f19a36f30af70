package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const (
	transactionColumns = `id, type_of, status, agent, seller, object, result, potential_actions,
		expires, start_date, end_date, tasks_exportation_status, tasks_exported_at`

	returnUniqueConstraint = "uq_transactions_return_of"
)

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создаёт PostgreSQL-реализацию TransactionRepository.
// Переходы статуса выполняются одним условным UPDATE по текущему статусу.
func NewTransactionRepository(store *Store) domain.TransactionRepository {
	return &transactionRepository{db: store.DB()}
}

func (r *transactionRepository) Start(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.StartDate.IsZero() {
		tx.StartDate = time.Now().UTC()
	}
	tx.Status = domain.TransactionStatusInProgress
	tx.TasksExportationStatus = domain.TasksUnexported

	agent, err := marshalJSONB(tx.Agent)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal agent: %w", err)
	}
	seller, err := marshalJSONB(tx.Seller)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal seller: %w", err)
	}
	object, err := marshalJSONB(tx.Object)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal transaction object: %w", err)
	}

	var returnOf any
	if tx.TypeOf == domain.TransactionTypeReturnOrder && tx.Object.Transaction != nil {
		returnOf = tx.Object.Transaction.ID
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, type_of, status, agent, seller, object, return_of,
			expires, start_date, tasks_exportation_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		tx.ID, string(tx.TypeOf), string(tx.Status), agent, seller, object, returnOf,
		tx.Expires, tx.StartDate, string(tx.TasksExportationStatus),
	)
	if err != nil {
		switch {
		case violatedConstraint(err) == returnUniqueConstraint:
			return domain.Transaction{}, domain.AlreadyInUse("transaction", []string{"object.transaction"}, "duplicate return transaction")
		case isUniqueViolation(err):
			return domain.Transaction{}, domain.AlreadyInUse("transaction", []string{"id"}, "duplicate transaction id")
		}
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error) {
	return r.findOne(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND type_of = $2
	`, id, string(typeOf))
}

func (r *transactionRepository) FindInProgressByID(ctx context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error) {
	return r.findOne(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE id = $1 AND type_of = $2 AND status = 'InProgress'
	`, id, string(typeOf))
}

func (r *transactionRepository) SetCustomerContact(ctx context.Context, typeOf domain.TransactionType, id string, contact domain.CustomerContact) (domain.Transaction, error) {
	raw, err := marshalJSONB(contact)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal customer contact: %w", err)
	}
	return r.findOne(ctx, `
		UPDATE transactions
		SET object = jsonb_set(object, '{customerContact}', $3::jsonb)
		WHERE id = $1 AND type_of = $2 AND status = 'InProgress'
		RETURNING `+transactionColumns,
		id, string(typeOf), raw)
}

func (r *transactionRepository) Confirm(ctx context.Context, params domain.ConfirmParams) (domain.Transaction, error) {
	result, err := marshalJSONB(params.Result)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal transaction result: %w", err)
	}
	potentialActions, err := marshalJSONB(params.PotentialActions)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal potential actions: %w", err)
	}
	var authorizeActions any
	if params.AuthorizeActions != nil {
		if authorizeActions, err = marshalJSONB(params.AuthorizeActions); err != nil {
			return domain.Transaction{}, fmt.Errorf("marshal authorize actions: %w", err)
		}
	}

	tx, err := r.findOne(ctx, `
		UPDATE transactions
		SET status = 'Confirmed',
		    end_date = $3,
		    result = $4,
		    potential_actions = $5,
		    object = CASE WHEN $6::jsonb IS NULL THEN object
		                  ELSE jsonb_set(object, '{authorizeActions}', $6::jsonb) END
		WHERE id = $1 AND type_of = $2 AND status = 'InProgress'
		RETURNING `+transactionColumns,
		params.ID, string(params.TypeOf), time.Now().UTC(), result, potentialActions, authorizeActions)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return tx, err
	}

	current, findErr := r.FindByID(ctx, params.TypeOf, params.ID)
	if findErr != nil {
		return domain.Transaction{}, findErr
	}
	if current.Status == domain.TransactionStatusConfirmed {
		return domain.Transaction{}, domain.AlreadyInUse("transaction", []string{"status"}, "Transaction already confirmed.")
	}
	return domain.Transaction{}, domain.NotFound("transaction")
}

func (r *transactionRepository) Cancel(ctx context.Context, typeOf domain.TransactionType, id string) (domain.Transaction, error) {
	return r.findOne(ctx, `
		UPDATE transactions
		SET status = 'Canceled', end_date = $3
		WHERE id = $1 AND type_of = $2 AND status = 'InProgress'
		RETURNING `+transactionColumns,
		id, string(typeOf), time.Now().UTC())
}

func (r *transactionRepository) MakeExpired(ctx context.Context, now time.Time) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		UPDATE transactions
		SET status = 'Expired', end_date = $1
		WHERE status = 'InProgress' AND expires < $1
		RETURNING `+transactionColumns, now)
	if err != nil {
		return nil, fmt.Errorf("expire transactions: %w", err)
	}
	defer rows.Close()

	expired := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired transaction: %w", err)
		}
		expired = append(expired, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired transactions: %w", err)
	}
	return expired, nil
}

func (r *transactionRepository) StartExportTasks(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error) {
	tx, err := r.findOne(ctx, `
		UPDATE transactions
		SET tasks_exportation_status = 'Exporting', tasks_exporting_at = $3
		WHERE id = (
			SELECT id FROM transactions
			WHERE type_of = $1 AND status = $2 AND tasks_exportation_status = 'Unexported'
			ORDER BY start_date
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+transactionColumns,
		string(typeOf), string(status), time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) SetTasksExportedByID(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET tasks_exportation_status = 'Exported', tasks_exported_at = $2, tasks_exporting_at = NULL
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set tasks exported: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("transaction")
	}
	return nil
}

func (r *transactionRepository) ReexportTasks(ctx context.Context, interval time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET tasks_exportation_status = 'Unexported', tasks_exporting_at = NULL
		WHERE tasks_exportation_status = 'Exporting' AND tasks_exporting_at <= $1
	`, time.Now().UTC().Add(-interval))
	if err != nil {
		return 0, fmt.Errorf("reexport tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *transactionRepository) findOne(ctx context.Context, query string, args ...any) (domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, domain.NotFound("transaction")
		}
		return domain.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}
	return tx, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx               domain.Transaction
		typeOf, status   string
		exportStatus     string
		agent, seller    []byte
		object           []byte
		result           []byte
		potentialActions []byte
		endDate          sql.NullTime
		exportedAt       sql.NullTime
	)
	if err := row.Scan(
		&tx.ID, &typeOf, &status, &agent, &seller, &object, &result, &potentialActions,
		&tx.Expires, &tx.StartDate, &endDate, &exportStatus, &exportedAt,
	); err != nil {
		return domain.Transaction{}, err
	}

	tx.TypeOf = domain.TransactionType(typeOf)
	tx.Status = domain.TransactionStatus(status)
	tx.TasksExportationStatus = domain.TasksExportationStatus(exportStatus)
	tx.Expires = tx.Expires.UTC()
	tx.StartDate = tx.StartDate.UTC()
	tx.EndDate = nullTimePtr(endDate)
	tx.TasksExportedAt = nullTimePtr(exportedAt)

	if err := json.Unmarshal(agent, &tx.Agent); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode agent: %w", err)
	}
	if err := json.Unmarshal(seller, &tx.Seller); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode seller: %w", err)
	}
	if err := json.Unmarshal(object, &tx.Object); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode transaction object: %w", err)
	}
	if len(result) > 0 {
		tx.Result = &domain.TransactionResult{}
		if err := json.Unmarshal(result, tx.Result); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode transaction result: %w", err)
		}
	}
	if len(potentialActions) > 0 {
		tx.PotentialActions = &domain.TransactionPotentialActions{}
		if err := json.Unmarshal(potentialActions, tx.PotentialActions); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode potential actions: %w", err)
		}
	}
	return tx, nil
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)
