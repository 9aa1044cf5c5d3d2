package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAutoAssign assigns drivers to pending scheduled deliveries.
	TaskAutoAssign = "delivery:auto_assign"
	// TaskLedgerIntegrity recomputes account balances and reports drift.
	TaskLedgerIntegrity = "ledger:integrity"
)

// AutoAssignPayload scopes an auto-assignment run to a date. A zero date
// means today.
type AutoAssignPayload struct {
	Date time.Time `json:"date"`
}

// NewAutoAssignTask constructs an Asynq task for driver auto-assignment.
func NewAutoAssignTask(payload AutoAssignPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutoAssign, data), nil
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger drift check.
func NewLedgerIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLedgerIntegrity, nil), nil
}

func decodePayload[T any](t *asynq.Task) (T, error) {
	var payload T
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
