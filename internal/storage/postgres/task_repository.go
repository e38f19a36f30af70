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

const taskColumns = `id, name, status, runs_at, remaining_number_of_tries, last_tried_at,
	number_of_tried, execution_results, data`

type taskRepository struct {
	db *sql.DB
}

// NewTaskRepository создаёт PostgreSQL-реализацию очереди задач.
func NewTaskRepository(store *Store) domain.TaskRepository {
	return &taskRepository{db: store.DB()}
}

func (r *taskRepository) Save(ctx context.Context, attrs domain.TaskAttributes) (domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if attrs.ExecutionResults == nil {
		attrs.ExecutionResults = []domain.TaskExecutionResult{}
	}
	task := domain.Task{ID: uuid.NewString(), TaskAttributes: attrs}

	results, err := marshalJSONB(attrs.ExecutionResults)
	if err != nil {
		return domain.Task{}, fmt.Errorf("marshal execution results: %w", err)
	}
	data, err := marshalJSONB(attrs.Data)
	if err != nil {
		return domain.Task{}, fmt.Errorf("marshal task data: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, name, status, runs_at, remaining_number_of_tries, last_tried_at,
			number_of_tried, execution_results, data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		task.ID, string(attrs.Name), string(attrs.Status), attrs.RunsAt, attrs.RemainingNumberOfTries,
		attrs.LastTriedAt, attrs.NumberOfTried, results, data,
	); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// ClaimReady захватывает задачи через FOR UPDATE SKIP LOCKED, поэтому несколько воркеров не пересекаются.
func (r *taskRepository) ClaimReady(ctx context.Context, now time.Time, limit int) ([]domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE tasks
		SET status = 'Running',
		    last_tried_at = $1,
		    number_of_tried = number_of_tried + 1,
		    remaining_number_of_tries = remaining_number_of_tries - 1
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'Ready' AND runs_at <= $1 AND remaining_number_of_tries > 0
			ORDER BY runs_at, created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim ready tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *taskRepository) Finish(ctx context.Context, id string, status domain.TaskStatus, runsAt time.Time, result domain.TaskExecutionResult) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := marshalJSONB([]domain.TaskExecutionResult{result})
	if err != nil {
		return fmt.Errorf("marshal execution result: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2,
		    runs_at = $3,
		    execution_results = execution_results || $4::jsonb
		WHERE id = $1 AND status = 'Running'
	`, id, string(status), runsAt, raw)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("task")
	}
	return nil
}

const retryStuckTasksSQL = `
	UPDATE tasks
	SET status = CASE WHEN remaining_number_of_tries > 0 THEN 'Ready' ELSE 'Aborted' END
	WHERE status = 'Running' AND last_tried_at <= $1
`

func (r *taskRepository) RetryStuck(ctx context.Context, now time.Time, interval time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, retryStuckTasksSQL, now.Add(-interval))
	if err != nil {
		return 0, fmt.Errorf("retry stuck tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	task, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, domain.NotFound("task")
		}
		return domain.Task{}, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task        domain.Task
		name        string
		status      string
		lastTriedAt sql.NullTime
		results     []byte
		data        []byte
	)
	if err := row.Scan(
		&task.ID, &name, &status, &task.RunsAt, &task.RemainingNumberOfTries, &lastTriedAt,
		&task.NumberOfTried, &results, &data,
	); err != nil {
		return domain.Task{}, err
	}
	task.Name = domain.TaskName(name)
	task.Status = domain.TaskStatus(status)
	task.RunsAt = task.RunsAt.UTC()
	task.LastTriedAt = nullTimePtr(lastTriedAt)

	if err := json.Unmarshal(results, &task.ExecutionResults); err != nil {
		return domain.Task{}, fmt.Errorf("decode execution results: %w", err)
	}
	if err := json.Unmarshal(data, &task.Data); err != nil {
		return domain.Task{}, fmt.Errorf("decode task data: %w", err)
	}
	return task, nil
}

var _ domain.TaskRepository = (*taskRepository)(nil)
