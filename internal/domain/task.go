package domain

import "time"

// TaskName: имя задачи; по нему воркер выбирает исполнителя.
type TaskName string

const (
	TaskSendEmailMessage      TaskName = "SendEmailMessage"
	TaskReturnOrder           TaskName = "ReturnOrder"
	TaskPayCreditCard         TaskName = "PayCreditCard"
	TaskPayPecorino           TaskName = "PayPecorino"
	TaskUseMvtk               TaskName = "UseMvtk"
	TaskGivePecorinoAward     TaskName = "GivePecorinoAward"
	TaskSendOrder             TaskName = "SendOrder"
	TaskCancelSeatReservation TaskName = "CancelSeatReservation"
	TaskCancelCreditCard      TaskName = "CancelCreditCard"
	TaskCancelPecorino        TaskName = "CancelPecorino"
	TaskCancelPecorinoAward   TaskName = "CancelPecorinoAward"
	TaskCancelMvtk            TaskName = "CancelMvtk"
	TaskRefundCreditCard      TaskName = "RefundCreditCard"
	TaskRefundPecorino        TaskName = "RefundPecorino"
	TaskReturnPecorinoAward   TaskName = "ReturnPecorinoAward"
)

// TaskStatus: состояние задачи в очереди.
type TaskStatus string

const (
	TaskStatusReady    TaskStatus = "Ready"
	TaskStatusRunning  TaskStatus = "Running"
	TaskStatusExecuted TaskStatus = "Executed"
	TaskStatusAborted  TaskStatus = "Aborted"
)

const (
	// SendEmailMessageTries: число попыток отправки письма.
	SendEmailMessageTries = 3
	// ReturnOrderTries: число попыток исполнения возврата.
	ReturnOrderTries = 10
	// DefaultTaskTries: число попыток для остальных задач.
	DefaultTaskTries = 10
)

// TaskData: полезная нагрузка задачи.
type TaskData struct {
	TransactionID    string            `json:"transactionId,omitempty"`
	ActionAttributes *ActionAttributes `json:"actionAttributes,omitempty"`
}

// TaskExecutionResult: итог одной попытки исполнения.
type TaskExecutionResult struct {
	ExecutedAt time.Time    `json:"executedAt"`
	Error      *ActionError `json:"error,omitempty"`
}

// TaskAttributes: запись задачи, которую ядро кладёт в очередь.
type TaskAttributes struct {
	Name                   TaskName              `json:"name"`
	Status                 TaskStatus            `json:"status"`
	RunsAt                 time.Time             `json:"runsAt"`
	RemainingNumberOfTries int                   `json:"remainingNumberOfTries"`
	LastTriedAt            *time.Time            `json:"lastTriedAt"`
	NumberOfTried          int                   `json:"numberOfTried"`
	ExecutionResults       []TaskExecutionResult `json:"executionResults"`
	Data                   TaskData              `json:"data"`
}

// Task: сохранённая задача.
type Task struct {
	ID string `json:"id"`
	TaskAttributes
}

// NewTaskAttributes создаёт задачу в статусе Ready с немедленным запуском.
func NewTaskAttributes(name TaskName, data TaskData, tries int, now time.Time) TaskAttributes {
	return TaskAttributes{
		Name:                   name,
		Status:                 TaskStatusReady,
		RunsAt:                 now,
		RemainingNumberOfTries: tries,
		LastTriedAt:            nil,
		NumberOfTried:          0,
		ExecutionResults:       []TaskExecutionResult{},
		Data:                   data,
	}
}
