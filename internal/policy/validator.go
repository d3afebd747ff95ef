package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailguard/internal/mailbox"
	"mailguard/internal/model"
	"mailguard/pkg/metrics"
)

// Store is the read-only policy surface the validator consults. Implemented
// by repository.PolicyRepository.
type Store interface {
	ListAllowedActions(ctx context.Context, accountID int, actionType model.ActionType) ([]model.AllowedAction, error)
	ListOptions(ctx context.Context, accountID int, actionType model.ActionType, provider string) ([]model.AllowedActionOption, error)
	GetTargetGroup(ctx context.Context, groupID int64) (*model.TargetGroup, error)
	ListGroupOptions(ctx context.Context, groupID int64) ([]model.AllowedActionOption, error)
}

// Decision is the validation outcome. Denials are values, never errors; an
// error from ValidateAction means infrastructure trouble, not policy.
type Decision struct {
	Allowed           bool
	Reason            string
	ConditionsChecked []model.ConditionResult
}

type Validator struct {
	store   Store
	mailbox mailbox.Accessor
	logger  *zap.Logger
	now     func() time.Time
}

func NewValidator(store Store, mb mailbox.Accessor, logger *zap.Logger) *Validator {
	return &Validator{
		store:   store,
		mailbox: mb,
		logger:  logger,
		now:     time.Now,
	}
}

// ValidateAction decides whether a proposed action may execute for the
// account. resourceID names the message/thread the action targets.
func (v *Validator) ValidateAction(ctx context.Context, accountID int, provider string, action model.StructuredAction, resourceID string) (Decision, error) {
	d, err := v.validate(ctx, accountID, provider, action, resourceID)
	if err == nil {
		metrics.RecordPolicyDecision(string(action.Type), d.Allowed)
	}
	return d, err
}

func (v *Validator) validate(ctx context.Context, accountID int, provider string, action model.StructuredAction, resourceID string) (Decision, error) {
	policyKey := action.Type.Normalize()

	rows, err := v.store.ListAllowedActions(ctx, accountID, policyKey)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load allowed actions: %w", err)
	}

	row := pickAllowedAction(rows, action.ResourceType)
	if row == nil || !row.Enabled {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Action type %q not enabled", action.Type),
		}, nil
	}

	var checked []model.ConditionResult
	if len(row.Conditions) > 0 {
		conds, err := ParseConditions(row.Conditions)
		if err != nil {
			// Fail closed: a corrupt policy must never become a silent allow.
			v.logger.Error("Malformed stored conditions, denying action",
				zap.Int("account_id", accountID),
				zap.String("action_type", string(action.Type)),
				zap.Int64("allowed_action_id", row.ID),
				zap.Error(err),
			)
			return Decision{Allowed: false, Reason: "stored conditions are malformed"}, nil
		}

		checked, err = v.evaluateConditions(ctx, conds, provider, action, resourceID)
		if err != nil {
			return Decision{}, err
		}
		if n := len(checked); n > 0 && !checked[n-1].Passed {
			return Decision{
				Allowed:           false,
				Reason:            checked[n-1].Reason,
				ConditionsChecked: checked,
			}, nil
		}
	}

	if action.Type.IsTargeted() {
		d, err := v.checkTarget(ctx, accountID, provider, action, resourceID)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			d.ConditionsChecked = checked
			return d, nil
		}
	}

	return Decision{Allowed: true, ConditionsChecked: checked}, nil
}

// evaluateConditions runs EvaluateAll with a lazy mailbox fetch: simple
// policies never cost a mailbox round-trip, and a missing message is a
// failed condition rather than an error.
func (v *Validator) evaluateConditions(ctx context.Context, conds []Condition, provider string, action model.StructuredAction, resourceID string) ([]model.ConditionResult, error) {
	evalCtx := EvalContext{
		Provider:     provider,
		ResourceType: action.ResourceType,
		Now:          v.now(),
	}

	results, _, err := EvaluateAll(conds, evalCtx, func() (*mailbox.Message, error) {
		msg, err := v.mailbox.GetMessage(ctx, resourceID)
		if err != nil && !errors.Is(err, mailbox.ErrNotFound) {
			return nil, fmt.Errorf("failed to fetch message %s: %w", resourceID, err)
		}
		return msg, nil
	})
	return results, err
}

// checkTarget resolves the action's target against the allow-listed options
// and enforces SINGLE-cardinality target groups.
func (v *Validator) checkTarget(ctx context.Context, accountID int, provider string, action model.StructuredAction, resourceID string) (Decision, error) {
	if action.TargetExternalID == "" && action.TargetName == "" {
		return Decision{Allowed: false, Reason: "target required for this action type"}, nil
	}

	options, err := v.store.ListOptions(ctx, accountID, action.Type.Normalize(), provider)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load allowed action options: %w", err)
	}

	option := pickOption(options, action)
	if option == nil {
		return Decision{Allowed: false, Reason: "target not in allow list"}, nil
	}

	if option.TargetGroupID == nil {
		return Decision{Allowed: true}, nil
	}

	group, err := v.store.GetTargetGroup(ctx, *option.TargetGroupID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load target group %d: %w", *option.TargetGroupID, err)
	}
	if group == nil || group.Cardinality != model.CardinalitySingle {
		return Decision{Allowed: true}, nil
	}

	siblings, err := v.store.ListGroupOptions(ctx, group.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load group options: %w", err)
	}

	labels, err := v.mailbox.GetLabels(ctx, resourceID)
	if err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			return Decision{Allowed: true}, nil
		}
		return Decision{}, fmt.Errorf("failed to fetch labels for %s: %w", resourceID, err)
	}

	current := currentGroupValue(siblings, labels)
	if current != nil && current.ID == option.ID {
		return Decision{Allowed: false, Reason: "resource already has this target group value"}, nil
	}

	return Decision{Allowed: true}, nil
}

// pickAllowedAction prefers the exact resourceType row over the wildcard,
// most recently updated row winning ties.
func pickAllowedAction(rows []model.AllowedAction, resourceType string) *model.AllowedAction {
	var exact, wildcard *model.AllowedAction
	for i := range rows {
		r := &rows[i]
		switch {
		case r.ResourceType != nil && *r.ResourceType == resourceType:
			if exact == nil || r.UpdatedAt.After(exact.UpdatedAt) {
				exact = r
			}
		case r.ResourceType == nil:
			if wildcard == nil || r.UpdatedAt.After(wildcard.UpdatedAt) {
				wildcard = r
			}
		}
	}
	if exact != nil {
		return exact
	}
	return wildcard
}

// pickOption resolves the requested target, preferring an option scoped to
// the action's resourceType over the provider-wide wildcard.
func pickOption(options []model.AllowedActionOption, action model.StructuredAction) *model.AllowedActionOption {
	var exact, wildcard *model.AllowedActionOption
	for i := range options {
		o := &options[i]
		if !o.Matches(action.TargetExternalID, action.TargetName) {
			continue
		}
		switch {
		case o.ResourceType != nil && *o.ResourceType == action.ResourceType:
			if exact == nil || o.UpdatedAt.After(exact.UpdatedAt) {
				exact = o
			}
		case o.ResourceType == nil:
			if wildcard == nil || o.UpdatedAt.After(wildcard.UpdatedAt) {
				wildcard = o
			}
		}
	}
	if exact != nil {
		return exact
	}
	return wildcard
}

// currentGroupValue scans the resource's labels against the group's sibling
// options; the most recently updated matching sibling wins ties.
func currentGroupValue(siblings []model.AllowedActionOption, labels []string) *model.AllowedActionOption {
	present := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		present[l] = struct{}{}
	}

	var current *model.AllowedActionOption
	for i := range siblings {
		s := &siblings[i]
		carried := false
		if s.ExternalID != nil {
			_, carried = present[*s.ExternalID]
		}
		if !carried && s.Name != nil {
			_, carried = present[*s.Name]
		}
		if carried && (current == nil || s.UpdatedAt.After(current.UpdatedAt)) {
			current = s
		}
	}
	return current
}
