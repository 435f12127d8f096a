package model

import (
	"encoding/json"
	"time"
)

// TaskKind names the work a task carries.
type TaskKind string

const (
	TaskKindExtraction  TaskKind = "extraction"  // run the extraction coordinator
	TaskKindValidation  TaskKind = "validation"  // validate a batch of endpoints
	TaskKindCleanup     TaskKind = "cleanup"     // evict endpoints past the failure threshold
	TaskKindMaintenance TaskKind = "maintenance" // re-validate stale endpoints
	TaskKindExport      TaskKind = "export"      // write the pool to a text file
)

// TaskStatus is the lifecycle state of a task. Transitions move strictly
// forward: pending to running to completed or failed, and pending to
// cancelled. The only backward transition is running back to pending
// during crash recovery, when no worker actually holds the task anymore.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskConfig carries per-task execution knobs. Priority is
// higher-number-wins: a priority 10 task dispatches before a priority 1
// task; ties break FIFO by enqueue order.
type TaskConfig struct {
	Timeout    time.Duration     `json:"timeout,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	RetryDelay time.Duration     `json:"retry_delay,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// Task is one unit of background work. The persisted row is the durable
// source of truth; the in-memory object is a cache of it. While running
// it is mutated only by the worker that owns it.
type Task struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           TaskKind        `json:"kind"`
	Status         TaskStatus      `json:"status"`
	Config         TaskConfig      `json:"config"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	AssignedWorker string          `json:"assigned_worker,omitempty"`
	RetryCount     int             `json:"retry_count"`
}

// Param returns a string parameter with a fallback.
func (t *Task) Param(key, fallback string) string {
	if t.Config.Params == nil {
		return fallback
	}
	if v, ok := t.Config.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}
