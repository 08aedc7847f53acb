package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a persisted task.
type TaskStatus string

const (
	TaskStatusOpen    TaskStatus = "open"
	TaskStatusBlocked TaskStatus = "blocked"
	TaskStatusDone    TaskStatus = "done"
)

// Task is a persisted task record. The pipeline is not a task board: tasks
// exist here so that EXECUTE has a durable effect and enrichment has
// something to match against.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	Deadline    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskOperation is the kind of mutation a proposal carries.
type TaskOperation string

const (
	TaskOperationCreate  TaskOperation = "create"
	TaskOperationUpdate  TaskOperation = "update"
	TaskOperationComment TaskOperation = "comment"
)

// TaskProposal is a candidate task mutation produced by one pipeline run.
// Proposals are transient: the confidence gate either materializes them
// into Task/Comment records or drops them.
type TaskProposal struct {
	Operation      TaskOperation
	TargetTaskID   string
	Title          string
	Description    string
	Deadline       *time.Time
	Confidence     float64
	Factors        map[string]float64
	RelevanceScore int
	Reasoning      string
}

// FieldDiff describes one proposed change to a field of an existing task.
type FieldDiff struct {
	Field    string
	OldValue string
	NewValue string
}

// EnrichmentOperation is a proposed change to an existing task derived from
// new context. At most one operation is emitted per (task, context) pair.
type EnrichmentOperation struct {
	TargetTaskID  string
	ContextItemID string
	Diffs         []FieldDiff
	Confidence    float64
	Reasoning     string
}

// Comment is a note attached to a task by the pipeline.
type Comment struct {
	ID            string
	TaskID        string
	ContextItemID string
	Body          string
	CreatedAt     time.Time
}

// ValidateTaskProposal validates a TaskProposal instance.
func ValidateTaskProposal(p *TaskProposal) error {
	if p == nil {
		return fmt.Errorf("task proposal cannot be nil")
	}

	switch p.Operation {
	case TaskOperationCreate:
		if p.Title == "" {
			return fmt.Errorf("create proposal requires a Title")
		}
	case TaskOperationUpdate, TaskOperationComment:
		if p.TargetTaskID == "" {
			return fmt.Errorf("%s proposal requires a TargetTaskID", p.Operation)
		}
	default:
		return fmt.Errorf("task proposal Operation is invalid: %s", p.Operation)
	}

	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("task proposal Confidence must be within [0,1]: %f", p.Confidence)
	}

	return nil
}

// IsValidTaskStatus checks if a TaskStatus is valid.
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusOpen, TaskStatusBlocked, TaskStatusDone:
		return true
	}
	return false
}
