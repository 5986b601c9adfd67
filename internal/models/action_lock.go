package models

import (
	"fmt"
	"time"
)

// LockStatus is the lifecycle state of an action lock.
// A lock transitions to completed or failed exactly once and is never deleted.
type LockStatus string

const (
	LockInProgress LockStatus = "in_progress"
	LockCompleted  LockStatus = "completed"
	LockFailed     LockStatus = "failed"
)

// ActionLock asserts that a (subject, action-kind) pair has an operation in
// flight. At most one in-flight lock may exist per pair: Active is true while
// in progress and NULLed on the terminal transition, so terminal rows fall
// out of the composite unique index (SQL NULLs never collide).
type ActionLock struct {
	ID               string     `json:"id" gorm:"type:uuid;primaryKey"`
	SubjectType      string     `json:"subject_type" gorm:"size:50;not null;uniqueIndex:uq_action_locks_inflight,priority:1"`
	SubjectID        string     `json:"subject_id" gorm:"size:100;not null;uniqueIndex:uq_action_locks_inflight,priority:2"`
	ActionKind       string     `json:"action_kind" gorm:"size:100;not null;uniqueIndex:uq_action_locks_inflight,priority:3"`
	Active           *bool      `json:"-" gorm:"uniqueIndex:uq_action_locks_inflight,priority:4"`
	Status           LockStatus `json:"status" gorm:"size:20;not null;index"`
	CorrelationToken *string    `json:"correlation_token,omitempty" gorm:"size:128;index"`
	EventID          *uint      `json:"event_id,omitempty" gorm:"index"`
	StartedAt        time.Time  `json:"started_at"`
	DispatchedAt     *time.Time `json:"dispatched_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	DurationMs       *int64     `json:"duration_ms,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty" gorm:"type:text"`
}

func (ActionLock) TableName() string { return "action_locks" }

// Description renders the in-flight operation for conflict responses.
func (l *ActionLock) Description() string {
	return fmt.Sprintf("%s on %s %s has been in progress since %s",
		l.ActionKind, l.SubjectType, l.SubjectID, l.StartedAt.Format(time.RFC3339))
}
