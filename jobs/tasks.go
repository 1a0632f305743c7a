package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgePaid removes paid repairs past the retention window.
	TaskPurgePaid = "payouts:purge_paid"
	// TaskPurgeLedger removes payout ledger lines past the ledger window.
	TaskPurgeLedger = "payouts:purge_ledger"
	// TaskIdempotencyCleanup removes stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskDashboardWarmup precomputes the dashboard summary for today.
	TaskDashboardWarmup = "dashboard:warmup"
)

// RetentionPayload carries the optional parameters of retention tasks.
type RetentionPayload struct {
	RequestedBy string        `json:"requested_by,omitempty"`
	OlderThan   time.Duration `json:"older_than,omitempty"`
}

// DashboardWarmupPayload carries the optional parameters of a warmup run.
type DashboardWarmupPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewPurgePaidTask constructs a paid repair purge task.
func NewPurgePaidTask(payload RetentionPayload) (*asynq.Task, error) {
	return newTask(TaskPurgePaid, payload)
}

// NewPurgeLedgerTask constructs a ledger purge task.
func NewPurgeLedgerTask(payload RetentionPayload) (*asynq.Task, error) {
	return newTask(TaskPurgeLedger, payload)
}

// NewIdempotencyCleanupTask constructs an idempotency cleanup task.
func NewIdempotencyCleanupTask(payload RetentionPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload)
}

// NewDashboardWarmupTask constructs a dashboard warmup task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	return newTask(TaskDashboardWarmup, payload)
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload(), dest)
}
