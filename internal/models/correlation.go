package models

import "fmt"

// CorrelationKind discriminates the two shapes a pending action can be
// identified by.
type CorrelationKind int

const (
	// CorrelationByEventID references a persisted NotificationEvent.
	CorrelationByEventID CorrelationKind = iota + 1
	// CorrelationByToken is a bare caller-generated token with no persisted
	// event behind it.
	CorrelationByToken
)

// CorrelationRef identifies a pending action awaiting a workflow callback.
// Exactly one of the two variants is set; construct through ByEventID or
// ByToken and branch on Kind.
type CorrelationRef struct {
	kind    CorrelationKind
	eventID uint
	token   string
}

func ByEventID(id uint) CorrelationRef {
	return CorrelationRef{kind: CorrelationByEventID, eventID: id}
}

func ByToken(token string) CorrelationRef {
	return CorrelationRef{kind: CorrelationByToken, token: token}
}

func (r CorrelationRef) Kind() CorrelationKind { return r.kind }

func (r CorrelationRef) IsZero() bool { return r.kind == 0 }

// EventID returns the persisted event id; ok is false for the token variant.
func (r CorrelationRef) EventID() (uint, bool) {
	return r.eventID, r.kind == CorrelationByEventID
}

// Token returns the bare token; ok is false for the event-id variant.
func (r CorrelationRef) Token() (string, bool) {
	return r.token, r.kind == CorrelationByToken
}

func (r CorrelationRef) String() string {
	switch r.kind {
	case CorrelationByEventID:
		return fmt.Sprintf("event:%d", r.eventID)
	case CorrelationByToken:
		return "token:" + r.token
	}
	return "unset"
}
