package model

// ActionType is the agent-facing verb of a proposed action.
type ActionType string

const (
	ActionClassify ActionType = "classify"
	ActionMove     ActionType = "move"
	ActionArchive  ActionType = "archive"
	ActionLabel    ActionType = "label"
	ActionReply    ActionType = "reply"
	ActionForward  ActionType = "forward"
	ActionDraft    ActionType = "draft"
	ActionSend     ActionType = "send"
	ActionMarkRead ActionType = "mark_read"
	ActionMarkSpam ActionType = "mark_spam"
	ActionDelete   ActionType = "delete"
)

// Normalize maps distinct agent verbs onto the policy key they share.
// "classify" and "label" are both a label/folder assignment, which is what
// the "move" allow-list rows govern.
func (t ActionType) Normalize() ActionType {
	switch t {
	case ActionClassify, ActionLabel:
		return ActionMove
	default:
		return t
	}
}

// IsTargeted reports whether the action writes a label/folder target and
// therefore must name one.
func (t ActionType) IsTargeted() bool {
	return t.Normalize() == ActionMove
}

// StructuredAction is an agent-proposed effect, immutable once proposed.
type StructuredAction struct {
	Type             ActionType `json:"type"`
	ResourceType     string     `json:"resource_type"`
	TargetExternalID string     `json:"target_external_id,omitempty"`
	TargetName       string     `json:"target_name,omitempty"`
	DelayMs          int64      `json:"delay_ms,omitempty"`
}
