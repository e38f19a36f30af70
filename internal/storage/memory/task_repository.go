package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type taskRecord struct {
	task domain.Task
	seq  int64
}

// taskRepositoryInMemory: in-memory очередь задач.
type taskRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]*taskRecord
	seq   int64
}

// NewTaskRepository создаёт in-memory очередь задач.
func NewTaskRepository() *taskRepositoryInMemory {
	return &taskRepositoryInMemory{items: make(map[string]*taskRecord)}
}

// Save кладёт задачу в очередь.
func (r *taskRepositoryInMemory) Save(_ context.Context, attrs domain.TaskAttributes) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if attrs.ExecutionResults == nil {
		attrs.ExecutionResults = []domain.TaskExecutionResult{}
	}
	task := domain.Task{ID: uuid.NewString(), TaskAttributes: attrs}
	r.items[task.ID] = &taskRecord{task: task, seq: r.seq}
	return task, nil
}

// ClaimReady захватывает готовые к запуску задачи в порядке runsAt.
func (r *taskRepositoryInMemory) ClaimReady(_ context.Context, now time.Time, limit int) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}

	ready := make([]*taskRecord, 0)
	for _, rec := range r.items {
		if rec.task.Status == domain.TaskStatusReady && !rec.task.RunsAt.After(now) && rec.task.RemainingNumberOfTries > 0 {
			ready = append(ready, rec)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].task.RunsAt.Equal(ready[j].task.RunsAt) {
			return ready[i].task.RunsAt.Before(ready[j].task.RunsAt)
		}
		return ready[i].seq < ready[j].seq
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}

	claimed := make([]domain.Task, 0, len(ready))
	for _, rec := range ready {
		tried := now
		rec.task.Status = domain.TaskStatusRunning
		rec.task.LastTriedAt = &tried
		rec.task.NumberOfTried++
		rec.task.RemainingNumberOfTries--
		claimed = append(claimed, rec.task)
	}
	return claimed, nil
}

// Finish фиксирует итог попытки.
func (r *taskRepositoryInMemory) Finish(_ context.Context, id string, status domain.TaskStatus, runsAt time.Time, result domain.TaskExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[id]
	if !ok || rec.task.Status != domain.TaskStatusRunning {
		return domain.NotFound("task")
	}
	rec.task.Status = status
	rec.task.RunsAt = runsAt
	rec.task.ExecutionResults = append(rec.task.ExecutionResults, result)
	return nil
}

// RetryStuck возвращает зависшие в Running задачи в очередь.
func (r *taskRepositoryInMemory) RetryStuck(_ context.Context, now time.Time, interval time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := now.Add(-interval)
	count := 0
	for _, rec := range r.items {
		task := &rec.task
		if task.Status != domain.TaskStatusRunning || task.LastTriedAt == nil || task.LastTriedAt.After(threshold) {
			continue
		}
		if task.RemainingNumberOfTries > 0 {
			task.Status = domain.TaskStatusReady
		} else {
			task.Status = domain.TaskStatusAborted
		}
		count++
	}
	return count, nil
}

// FindByID возвращает задачу по идентификатору.
func (r *taskRepositoryInMemory) FindByID(_ context.Context, id string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[id]
	if !ok {
		return domain.Task{}, domain.NotFound("task")
	}
	return rec.task, nil
}

// All возвращает все задачи в порядке сохранения (используется в тестах).
func (r *taskRepositoryInMemory) All() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := make([]*taskRecord, 0, len(r.items))
	for _, rec := range r.items {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	result := make([]domain.Task, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.task)
	}
	return result
}

// ByName возвращает задачи с указанным именем (используется в тестах).
func (r *taskRepositoryInMemory) ByName(name domain.TaskName) []domain.Task {
	var result []domain.Task
	for _, task := range r.All() {
		if task.Name == name {
			result = append(result, task)
		}
	}
	return result
}

var _ domain.TaskRepository = (*taskRepositoryInMemory)(nil)
