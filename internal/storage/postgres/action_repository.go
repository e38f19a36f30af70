package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const actionColumns = `id, type_of, action_status, object_type, attributes, result, error, start_date, end_date`

type actionRepository struct {
	db *sql.DB
}

// NewActionRepository создаёт PostgreSQL-реализацию журнала действий.
func NewActionRepository(store *Store) domain.ActionRepository {
	return &actionRepository{db: store.DB()}
}

func (r *actionRepository) Start(ctx context.Context, attrs domain.ActionAttributes) (domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	action := domain.Action{
		ActionAttributes: attrs,
		ID:               uuid.NewString(),
		ActionStatus:     domain.ActionStatusActive,
		StartDate:        time.Now().UTC(),
	}
	rawAttrs, err := marshalJSONB(attrs)
	if err != nil {
		return domain.Action{}, fmt.Errorf("marshal action attributes: %w", err)
	}

	purposeType, purposeID := "", ""
	if attrs.Purpose != nil {
		purposeType, purposeID = attrs.Purpose.TypeOf, attrs.Purpose.ID
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO actions (
			id, type_of, action_status, object_type, purpose_type, purpose_id,
			order_number, attributes, start_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		action.ID, string(attrs.TypeOf), string(action.ActionStatus), string(attrs.Object.ObjectType()),
		purposeType, purposeID, attrs.OrderNumber(), rawAttrs, action.StartDate,
	); err != nil {
		return domain.Action{}, fmt.Errorf("insert action: %w", err)
	}

	return action, nil
}

func (r *actionRepository) Complete(ctx context.Context, typeOf domain.ActionType, actionID string, result domain.ActionResult) (domain.Action, error) {
	rawResult, err := marshalJSONB(result)
	if err != nil {
		return domain.Action{}, fmt.Errorf("marshal action result: %w", err)
	}
	return r.transitionActive(ctx, typeOf, actionID,
		`action_status = $3, result = $4, end_date = $5`,
		string(domain.ActionStatusCompleted), rawResult, time.Now().UTC())
}

func (r *actionRepository) Cancel(ctx context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error) {
	return r.transitionActive(ctx, typeOf, actionID,
		`action_status = $3, end_date = $4`,
		string(domain.ActionStatusCanceled), time.Now().UTC())
}

func (r *actionRepository) GiveUp(ctx context.Context, typeOf domain.ActionType, actionID string, actionErr domain.ActionError) (domain.Action, error) {
	rawErr, err := marshalJSONB(actionErr)
	if err != nil {
		return domain.Action{}, fmt.Errorf("marshal action error: %w", err)
	}
	return r.transitionActive(ctx, typeOf, actionID,
		`action_status = $3, error = $4, end_date = $5`,
		string(domain.ActionStatusFailed), rawErr, time.Now().UTC())
}

// transitionActive выполняет условное обновление: меняется только Active действие нужного вида.
func (r *actionRepository) transitionActive(ctx context.Context, typeOf domain.ActionType, actionID, set string, args ...any) (domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `UPDATE actions SET ` + set + `
		WHERE id = $1 AND type_of = $2 AND action_status = '` + string(domain.ActionStatusActive) + `'
		RETURNING ` + actionColumns

	params := append([]any{actionID, string(typeOf)}, args...)
	action, err := scanAction(r.db.QueryRowContext(ctx, query, params...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Action{}, domain.NotFound("action")
		}
		return domain.Action{}, fmt.Errorf("transition action: %w", err)
	}
	return action, nil
}

func (r *actionRepository) CancelAuthorization(ctx context.Context, objectType domain.ObjectType, actionID, transactionID string) (domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	action, err := scanAction(r.db.QueryRowContext(ctx, `
		UPDATE actions SET action_status = $4, end_date = $5
		WHERE id = $1 AND object_type = $2 AND purpose_id = $3
		  AND type_of = 'AuthorizeAction' AND action_status = 'CompletedActionStatus'
		RETURNING `+actionColumns,
		actionID, string(objectType), transactionID, string(domain.ActionStatusCanceled), time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Action{}, domain.NotFound("authorizeAction")
		}
		return domain.Action{}, fmt.Errorf("cancel authorization: %w", err)
	}
	return action, nil
}

func (r *actionRepository) UpdateObjectAndResultByID(
	ctx context.Context,
	actionID, transactionID string,
	object domain.SeatReservationObject,
	result domain.SeatReservationResult,
) (domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rawObject, err := marshalJSONB(object)
	if err != nil {
		return domain.Action{}, fmt.Errorf("marshal seat reservation object: %w", err)
	}
	rawResult, err := marshalJSONB(result)
	if err != nil {
		return domain.Action{}, fmt.Errorf("marshal seat reservation result: %w", err)
	}

	action, err := scanAction(r.db.QueryRowContext(ctx, `
		UPDATE actions
		SET attributes = jsonb_set(attributes, '{object}', $3::jsonb),
		    result = $4
		WHERE id = $1 AND purpose_id = $2
		  AND type_of = 'AuthorizeAction' AND action_status = 'CompletedActionStatus'
		  AND object_type = 'SeatReservation'
		RETURNING `+actionColumns,
		actionID, transactionID, rawObject, rawResult,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Action{}, domain.NotFound("authorizeAction")
		}
		return domain.Action{}, fmt.Errorf("update seat reservation: %w", err)
	}
	return action, nil
}

func (r *actionRepository) FindByID(ctx context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	action, err := scanAction(r.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE id = $1 AND type_of = $2`,
		actionID, string(typeOf),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Action{}, domain.NotFound("action")
		}
		return domain.Action{}, fmt.Errorf("select action: %w", err)
	}
	return action, nil
}

func (r *actionRepository) FindAuthorizeByTransactionID(ctx context.Context, transactionID string) ([]domain.Action, error) {
	return r.query(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE type_of = 'AuthorizeAction' AND purpose_id = $1 AND purpose_type <> 'Order'
		ORDER BY seq
	`, transactionID)
}

func (r *actionRepository) SearchByTransactionID(ctx context.Context, params domain.SearchActionsParams) ([]domain.Action, error) {
	return r.query(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE purpose_type = $1 AND purpose_id = $2
		ORDER BY `+orderByClause(params.Sort),
		string(params.TransactionType), params.TransactionID)
}

func (r *actionRepository) FindByOrderNumber(ctx context.Context, orderNumber string) ([]domain.Action, error) {
	return r.query(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE order_number = $1
		ORDER BY end_date DESC NULLS LAST, seq
	`, orderNumber)
}

func (r *actionRepository) query(ctx context.Context, query string, args ...any) ([]domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := make([]domain.Action, 0)
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return actions, nil
}

// orderByClause строит ORDER BY из фиксированного набора колонок.
func orderByClause(sort *domain.ActionSort) string {
	if sort == nil {
		return "seq"
	}
	parts := make([]string, 0, 3)
	if sort.StartDate != 0 {
		parts = append(parts, "start_date "+sqlDirection(sort.StartDate))
	}
	if sort.EndDate != 0 {
		parts = append(parts, "end_date "+sqlDirection(sort.EndDate)+" NULLS LAST")
	}
	parts = append(parts, "seq")
	return strings.Join(parts, ", ")
}

func sqlDirection(d domain.SortDirection) string {
	if d == domain.SortDescending {
		return "DESC"
	}
	return "ASC"
}

func scanAction(row rowScanner) (domain.Action, error) {
	var (
		action     domain.Action
		typeOf     string
		status     string
		objectType string
		attrs      []byte
		result     []byte
		actionErr  []byte
		endDate    sql.NullTime
	)
	if err := row.Scan(&action.ID, &typeOf, &status, &objectType, &attrs, &result, &actionErr, &action.StartDate, &endDate); err != nil {
		return domain.Action{}, err
	}

	if err := json.Unmarshal(attrs, &action.ActionAttributes); err != nil {
		return domain.Action{}, fmt.Errorf("decode action attributes: %w", err)
	}
	action.TypeOf = domain.ActionType(typeOf)
	action.ActionStatus = domain.ActionStatus(status)
	action.StartDate = action.StartDate.UTC()
	action.EndDate = nullTimePtr(endDate)

	if len(result) > 0 {
		res, err := domain.DecodeActionResult(domain.ObjectType(objectType), result)
		if err != nil {
			return domain.Action{}, err
		}
		action.Result = res
	}
	if len(actionErr) > 0 {
		var snapshot domain.ActionError
		if err := json.Unmarshal(actionErr, &snapshot); err != nil {
			return domain.Action{}, fmt.Errorf("decode action error: %w", err)
		}
		action.Error = &snapshot
	}
	return action, nil
}

var _ domain.ActionRepository = (*actionRepository)(nil)
