package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailguard/internal/mailbox"
	"mailguard/internal/model"
	"mailguard/pkg/logger"
)

type fakeStore struct {
	actions      []model.AllowedAction
	options      []model.AllowedActionOption
	groups       map[int64]*model.TargetGroup
	groupOptions map[int64][]model.AllowedActionOption
	err          error
}

func (f *fakeStore) ListAllowedActions(_ context.Context, _ int, actionType model.ActionType) ([]model.AllowedAction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AllowedAction
	for _, a := range f.actions {
		if a.ActionType == actionType {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOptions(_ context.Context, _ int, actionType model.ActionType, _ string) ([]model.AllowedActionOption, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AllowedActionOption
	for _, o := range f.options {
		if o.ActionType == actionType {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTargetGroup(_ context.Context, groupID int64) (*model.TargetGroup, error) {
	return f.groups[groupID], nil
}

func (f *fakeStore) ListGroupOptions(_ context.Context, groupID int64) ([]model.AllowedActionOption, error) {
	return f.groupOptions[groupID], nil
}

type fakeMailbox struct {
	message         *mailbox.Message
	labels          []string
	getMessageCalls int
	getLabelsCalls  int
}

func (f *fakeMailbox) GetMessage(_ context.Context, _ string) (*mailbox.Message, error) {
	f.getMessageCalls++
	if f.message == nil {
		return nil, mailbox.ErrNotFound
	}
	return f.message, nil
}

func (f *fakeMailbox) GetLabels(_ context.Context, _ string) ([]string, error) {
	f.getLabelsCalls++
	return f.labels, nil
}

func (f *fakeMailbox) GetDraft(_ context.Context, _ string) (*mailbox.Draft, error) {
	return nil, mailbox.ErrNotFound
}

func (f *fakeMailbox) DeleteDraft(_ context.Context, _ string) error {
	return nil
}

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func enabledRow(actionType model.ActionType, resourceType *string, conditions []byte) model.AllowedAction {
	return model.AllowedAction{
		ID:           1,
		AccountID:    7,
		ActionType:   actionType,
		ResourceType: resourceType,
		Enabled:      true,
		Conditions:   conditions,
		UpdatedAt:    time.Now(),
	}
}

func TestValidateAction_MissingRowDenies(t *testing.T) {
	v := NewValidator(&fakeStore{}, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, `Action type "archive" not enabled`, d.Reason)
}

func TestValidateAction_DisabledRowDenies(t *testing.T) {
	row := enabledRow(model.ActionArchive, strPtr("email"), nil)
	row.Enabled = false
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{row}}, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestValidateAction_ExactResourceTypeBeatsWildcard(t *testing.T) {
	wildcard := enabledRow(model.ActionArchive, nil, nil)
	wildcard.Enabled = false
	wildcard.UpdatedAt = time.Now().Add(time.Hour) // newer, but still loses to exact
	exact := enabledRow(model.ActionArchive, strPtr("email"), nil)

	v := NewValidator(&fakeStore{actions: []model.AllowedAction{wildcard, exact}}, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestValidateAction_WildcardRowApplies(t *testing.T) {
	wildcard := enabledRow(model.ActionArchive, nil, nil)
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{wildcard}}, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestValidateAction_MalformedConditionsFailClosed(t *testing.T) {
	row := enabledRow(model.ActionArchive, strPtr("email"), []byte(`{broken`))
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{row}}, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "stored conditions are malformed", d.Reason)
}

func TestValidateAction_NoMailboxCallWithoutConditions(t *testing.T) {
	row := enabledRow(model.ActionArchive, strPtr("email"), nil)
	mb := &fakeMailbox{}
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{row}}, mb, logger.NewNop())

	_, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, mb.getMessageCalls)
}

func TestValidateAction_MessageFetchedOnceForConditions(t *testing.T) {
	conds := []byte(`[{"kind":"label-present","label":"INBOX"},{"kind":"sender-matches","pattern":"example.com"}]`)
	row := enabledRow(model.ActionArchive, strPtr("email"), conds)
	mb := &fakeMailbox{message: &mailbox.Message{From: "a@example.com", Labels: []string{"INBOX"}}}
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{row}}, mb, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, mb.getMessageCalls)
	assert.Len(t, d.ConditionsChecked, 2)
}

func TestValidateAction_ConditionFailureShortCircuits(t *testing.T) {
	conds := []byte(`[{"kind":"label-present","label":"Missing"},{"kind":"sender-matches","pattern":"example.com"}]`)
	row := enabledRow(model.ActionArchive, strPtr("email"), conds)
	mb := &fakeMailbox{message: &mailbox.Message{From: "a@example.com", Labels: []string{"INBOX"}}}
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{row}}, mb, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.Len(t, d.ConditionsChecked, 1)
	assert.Equal(t, d.Reason, d.ConditionsChecked[0].Reason)
}

func TestValidateAction_TargetRequired(t *testing.T) {
	row := enabledRow(model.ActionMove, strPtr("email"), nil)
	v := NewValidator(&fakeStore{actions: []model.AllowedAction{row}}, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionMove, ResourceType: "email"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "target required for this action type", d.Reason)
}

func TestValidateAction_TargetNotAllowListed(t *testing.T) {
	row := enabledRow(model.ActionMove, strPtr("email"), nil)
	store := &fakeStore{
		actions: []model.AllowedAction{row},
		options: []model.AllowedActionOption{
			{ID: 1, ActionType: model.ActionMove, Name: strPtr("Receipts")},
		},
	}
	v := NewValidator(store, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionMove, ResourceType: "email", TargetName: "Newsletters"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "target not in allow list", d.Reason)
}

// classify normalizes onto the move policy key, so a move allow-list row
// and move options govern it.
func TestValidateAction_ClassifyUsesMovePolicy(t *testing.T) {
	row := enabledRow(model.ActionMove, strPtr("email"), nil)
	store := &fakeStore{
		actions: []model.AllowedAction{row},
		options: []model.AllowedActionOption{
			{ID: 1, ActionType: model.ActionMove, Name: strPtr("Receipts")},
		},
	}
	v := NewValidator(store, &fakeMailbox{}, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionClassify, ResourceType: "email", TargetName: "Receipts"}, "m1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func singleGroupStore() *fakeStore {
	groupID := int64(42)
	optionA := model.AllowedActionOption{
		ID: 1, ActionType: model.ActionMove, Name: strPtr("A"), TargetGroupID: i64Ptr(groupID),
	}
	optionB := model.AllowedActionOption{
		ID: 2, ActionType: model.ActionMove, Name: strPtr("B"), TargetGroupID: i64Ptr(groupID),
	}
	return &fakeStore{
		actions: []model.AllowedAction{enabledRow(model.ActionMove, strPtr("email"), nil)},
		options: []model.AllowedActionOption{optionA, optionB},
		groups: map[int64]*model.TargetGroup{
			groupID: {ID: groupID, Cardinality: model.CardinalitySingle},
		},
		groupOptions: map[int64][]model.AllowedActionOption{
			groupID: {optionA, optionB},
		},
	}
}

func TestValidateAction_SingleGroupNoOpDenied(t *testing.T) {
	mb := &fakeMailbox{labels: []string{"A"}}
	v := NewValidator(singleGroupStore(), mb, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionMove, ResourceType: "email", TargetName: "A"}, "m1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "resource already has this target group value", d.Reason)
}

func TestValidateAction_SingleGroupSwitchAllowed(t *testing.T) {
	mb := &fakeMailbox{labels: []string{"A"}}
	v := NewValidator(singleGroupStore(), mb, logger.NewNop())

	d, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionMove, ResourceType: "email", TargetName: "B"}, "m1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestValidateAction_InfrastructureErrorPropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	v := NewValidator(store, &fakeMailbox{}, logger.NewNop())

	_, err := v.ValidateAction(context.Background(), 7, "gmail",
		model.StructuredAction{Type: model.ActionArchive, ResourceType: "email"}, "m1")
	assert.Error(t, err)
}
