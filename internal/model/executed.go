package model

import "time"

type ActionStatus string

const (
	StatusPending   ActionStatus = "PENDING"
	StatusScheduled ActionStatus = "SCHEDULED"
	StatusDone      ActionStatus = "DONE"
	StatusFailed    ActionStatus = "FAILED"
)

// IsTerminal reports whether no further transition may leave the status.
func (s ActionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ExecutedRule records one rule match for an account.
type ExecutedRule struct {
	ID        int64
	AccountID int
	RuleID    int64
	ThreadID  string
	CreatedAt time.Time
}

// ExecutedAction is one effect produced by a rule match. Content is the
// draft text snapshotted at creation time, used later to detect user edits.
type ExecutedAction struct {
	ID           int64
	RuleID       int64
	AccountID    int
	ThreadID     string
	Type         ActionType
	Status       ActionStatus
	ScheduledAt  time.Time
	DraftID      *string
	Content      *string
	ErrorMessage *string
	WasDraftSent *bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
