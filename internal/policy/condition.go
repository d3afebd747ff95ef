package policy

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"mailguard/internal/mailbox"
	"mailguard/internal/model"
)

// ConditionKind discriminates the stored-condition union. Conditions are
// data, interpreted at runtime; adding a kind means adding a constant and a
// case to Evaluate.
type ConditionKind string

const (
	KindLabelPresent  ConditionKind = "label-present"
	KindSenderMatches ConditionKind = "sender-matches"
	KindTimeWindow    ConditionKind = "time-window"
)

// Condition is one stored predicate. Only the fields for its kind are set.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// label-present
	Label string `json:"label,omitempty"`

	// sender-matches: substring match, or a glob when the pattern contains
	// a wildcard
	Pattern string `json:"pattern,omitempty"`

	// time-window: "HH:MM" bounds, window may wrap midnight
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// NeedsMessage reports whether evaluating the condition requires the live
// message. Used to skip the mailbox round-trip for simple policies.
func (c Condition) NeedsMessage() bool {
	switch c.Kind {
	case KindLabelPresent, KindSenderMatches:
		return true
	default:
		return false
	}
}

// EvalContext carries everything a condition may inspect. Message is nil
// until a condition forces a fetch.
type EvalContext struct {
	Message      *mailbox.Message
	Provider     string
	ResourceType string
	Now          time.Time
}

// ParseConditions decodes a stored condition list. Malformed JSON is the
// caller's signal to fail closed.
func ParseConditions(raw []byte) ([]Condition, error) {
	var conds []Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, fmt.Errorf("failed to decode stored conditions: %w", err)
	}
	return conds, nil
}

// Evaluate runs one condition against the context. It never returns an
// error: a condition referencing unavailable context fails with a reason.
func Evaluate(c Condition, evalCtx EvalContext) model.ConditionResult {
	switch c.Kind {
	case KindLabelPresent:
		if evalCtx.Message == nil {
			return model.ConditionResult{Passed: false, Reason: "message unavailable for label check"}
		}
		for _, l := range evalCtx.Message.Labels {
			if strings.EqualFold(l, c.Label) {
				return model.ConditionResult{Passed: true}
			}
		}
		return model.ConditionResult{Passed: false, Reason: fmt.Sprintf("label %q not present", c.Label)}

	case KindSenderMatches:
		if evalCtx.Message == nil {
			return model.ConditionResult{Passed: false, Reason: "message unavailable for sender check"}
		}
		from := strings.ToLower(evalCtx.Message.From)
		pattern := strings.ToLower(c.Pattern)
		if strings.ContainsAny(pattern, "*?") {
			if ok, err := path.Match(pattern, from); err == nil && ok {
				return model.ConditionResult{Passed: true}
			}
		} else if strings.Contains(from, pattern) {
			return model.ConditionResult{Passed: true}
		}
		return model.ConditionResult{Passed: false, Reason: fmt.Sprintf("sender %q does not match %q", evalCtx.Message.From, c.Pattern)}

	case KindTimeWindow:
		if evalCtx.Now.IsZero() {
			return model.ConditionResult{Passed: false, Reason: "current time unavailable for time window check"}
		}
		from, errFrom := parseClock(c.From)
		to, errTo := parseClock(c.To)
		if errFrom != nil || errTo != nil {
			return model.ConditionResult{Passed: false, Reason: fmt.Sprintf("invalid time window %q-%q", c.From, c.To)}
		}
		minute := evalCtx.Now.Hour()*60 + evalCtx.Now.Minute()
		if inWindow(minute, from, to) {
			return model.ConditionResult{Passed: true}
		}
		return model.ConditionResult{Passed: false, Reason: fmt.Sprintf("outside time window %s-%s", c.From, c.To)}

	default:
		// Unknown kinds fail closed: an old binary must not allow actions
		// gated by a condition it cannot interpret.
		return model.ConditionResult{Passed: false, Reason: fmt.Sprintf("unknown condition kind %q", c.Kind)}
	}
}

// MessageFetch lazily loads the live message the first time a condition
// needs it. Returning a nil message without error leaves those conditions
// failing with a reason instead of aborting evaluation.
type MessageFetch func() (*mailbox.Message, error)

// EvaluateAll evaluates conditions in declaration order, short-circuiting
// on the first failure. Results seen so far are always returned. The fetch
// runs at most once, and only when a condition actually inspects the
// message; a fetch error aborts evaluation.
func EvaluateAll(conds []Condition, evalCtx EvalContext, fetch MessageFetch) ([]model.ConditionResult, bool, error) {
	results := make([]model.ConditionResult, 0, len(conds))
	for _, c := range conds {
		if c.NeedsMessage() && evalCtx.Message == nil && fetch != nil {
			msg, err := fetch()
			if err != nil {
				return nil, false, err
			}
			evalCtx.Message = msg
			fetch = nil
		}
		r := Evaluate(c, evalCtx)
		results = append(results, r)
		if !r.Passed {
			return results, false, nil
		}
	}
	return results, true, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func inWindow(minute, from, to int) bool {
	if from <= to {
		return minute >= from && minute <= to
	}
	// wraps midnight
	return minute >= from || minute <= to
}
