package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailguard/internal/model"
)

type PolicyRepository struct {
	db *pgxpool.Pool
}

func NewPolicyRepository(db *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ListAllowedActions returns every policy row for the account and action
// type; exact-vs-wildcard resolution happens in the validator.
func (r *PolicyRepository) ListAllowedActions(ctx context.Context, accountID int, actionType model.ActionType) ([]model.AllowedAction, error) {
	query := `
        SELECT id, account_id, action_type, resource_type, enabled, conditions, updated_at
        FROM allowed_actions
        WHERE account_id = $1 AND action_type = $2
    `
	rows, err := r.db.Query(ctx, query, accountID, string(actionType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []model.AllowedAction{}
	for rows.Next() {
		var a model.AllowedAction
		if err := rows.Scan(
			&a.ID,
			&a.AccountID,
			&a.ActionType,
			&a.ResourceType,
			&a.Enabled,
			&a.Conditions,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ListOptions returns the allow-listed targets for the account, action type
// and provider.
func (r *PolicyRepository) ListOptions(ctx context.Context, accountID int, actionType model.ActionType, provider string) ([]model.AllowedActionOption, error) {
	query := `
        SELECT id, account_id, action_type, provider, external_id, name, resource_type, target_group_id, updated_at
        FROM allowed_action_options
        WHERE account_id = $1 AND action_type = $2 AND provider = $3
    `
	rows, err := r.db.Query(ctx, query, accountID, string(actionType), provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := []model.AllowedActionOption{}
	for rows.Next() {
		var o model.AllowedActionOption
		if err := rows.Scan(
			&o.ID,
			&o.AccountID,
			&o.ActionType,
			&o.Provider,
			&o.ExternalID,
			&o.Name,
			&o.ResourceType,
			&o.TargetGroupID,
			&o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// GetTargetGroup returns the group, or nil if it does not exist.
func (r *PolicyRepository) GetTargetGroup(ctx context.Context, groupID int64) (*model.TargetGroup, error) {
	query := `
        SELECT id, account_id, cardinality
        FROM target_groups
        WHERE id = $1
    `
	var g model.TargetGroup
	err := r.db.QueryRow(ctx, query, groupID).Scan(&g.ID, &g.AccountID, &g.Cardinality)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// ListGroupOptions returns all sibling options of a target group.
func (r *PolicyRepository) ListGroupOptions(ctx context.Context, groupID int64) ([]model.AllowedActionOption, error) {
	query := `
        SELECT id, account_id, action_type, provider, external_id, name, resource_type, target_group_id, updated_at
        FROM allowed_action_options
        WHERE target_group_id = $1
    `
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := []model.AllowedActionOption{}
	for rows.Next() {
		var o model.AllowedActionOption
		if err := rows.Scan(
			&o.ID,
			&o.AccountID,
			&o.ActionType,
			&o.Provider,
			&o.ExternalID,
			&o.Name,
			&o.ResourceType,
			&o.TargetGroupID,
			&o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}
