package tasks

import "time"

// Task Types
const (
	// Housing allocation tasks
	TaskTypeProcessBatch = "housing:process_batch"
	TaskTypeCloseExpired = "housing:close_expired"
)

// ProcessBatchPayload is the payload of a housing:process_batch task.
type ProcessBatchPayload struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	Actor    string `json:"actor"`
}

// Task Queues
const (
	QueueCritical = "critical" // For time-sensitive tasks like batch processing
	QueueDefault  = "default"  // For regular tasks
	QueueLow      = "low"      // For background tasks like the expiry sweep
)

// Task Priorities (1-10, higher is more important)
const (
	PriorityCritical = 10
	PriorityHigh     = 8
	PriorityNormal   = 5
	PriorityLow      = 3
	PriorityBG       = 1
)

// Task Timeouts
const (
	TimeoutShort  = 1 * time.Minute
	TimeoutMedium = 5 * time.Minute
	TimeoutLong   = 30 * time.Minute
)

// Task Retry Settings
const (
	RetryMax     = 5
	RetryDefault = 3
	RetryMin     = 1
)
