package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JournalEntry records an exhausted workflow dispatch for operator review
// (MongoDB). Entries are append-only; they are never surfaced to the caller
// that triggered the action.
type JournalEntry struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	LockID      string             `json:"lock_id" bson:"lock_id"`
	SubjectType string             `json:"subject_type" bson:"subject_type"`
	SubjectID   string             `json:"subject_id" bson:"subject_id"`
	ActionKind  string             `json:"action_kind" bson:"action_kind"`
	Attempts    int                `json:"attempts" bson:"attempts"`
	Error       string             `json:"error" bson:"error"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}
