package model

import "time"

// AllowedAction is a per-account policy row. ResourceType nil is the
// wildcard row; an exact match wins over the wildcard, most recently
// updated row wins ties.
type AllowedAction struct {
	ID           int64
	AccountID    int
	ActionType   ActionType
	ResourceType *string
	Enabled      bool
	Conditions   []byte // serialized condition list, nullable
	UpdatedAt    time.Time
}

// AllowedActionOption is an allow-listed target (label, folder, category)
// for move/classify actions.
type AllowedActionOption struct {
	ID            int64
	AccountID     int
	ActionType    ActionType
	Provider      string
	ExternalID    *string
	Name          *string
	ResourceType  *string
	TargetGroupID *int64
	UpdatedAt     time.Time
}

// Matches reports whether the option matches the requested target by
// external id or name.
func (o AllowedActionOption) Matches(externalID, name string) bool {
	if externalID != "" && o.ExternalID != nil && *o.ExternalID == externalID {
		return true
	}
	if name != "" && o.Name != nil && *o.Name == name {
		return true
	}
	return false
}

type GroupCardinality string

const (
	CardinalitySingle GroupCardinality = "SINGLE"
	CardinalityMulti  GroupCardinality = "MULTI"
)

// TargetGroup groups mutually exclusive options. With SINGLE cardinality a
// resource carries at most one option from the group at a time.
type TargetGroup struct {
	ID          int64
	AccountID   int
	Cardinality GroupCardinality
}

// ConditionResult is returned for every evaluated condition, rejection
// included, so callers can audit the decision.
type ConditionResult struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}
