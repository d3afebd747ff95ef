package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mailguard/internal/model"
)

type ActionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActionRepository(db *pgxpool.Pool, logger *zap.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

const executedActionColumns = `
        id, rule_id, account_id, thread_id, action_type, status, scheduled_at,
        draft_id, content, error_message, was_draft_sent, created_at, updated_at`

func scanExecutedAction(row pgx.Row) (*model.ExecutedAction, error) {
	var a model.ExecutedAction
	err := row.Scan(
		&a.ID,
		&a.RuleID,
		&a.AccountID,
		&a.ThreadID,
		&a.Type,
		&a.Status,
		&a.ScheduledAt,
		&a.DraftID,
		&a.Content,
		&a.ErrorMessage,
		&a.WasDraftSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert stores a new executed action and returns its id.
func (r *ActionRepository) Insert(ctx context.Context, a *model.ExecutedAction) (int64, error) {
	query := `
        INSERT INTO executed_actions
            (rule_id, account_id, thread_id, action_type, status, scheduled_at, draft_id, content)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		a.RuleID,
		a.AccountID,
		a.ThreadID,
		string(a.Type),
		string(a.Status),
		a.ScheduledAt,
		a.DraftID,
		a.Content,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert executed action",
			zap.Error(err),
			zap.Int64("rule_id", a.RuleID),
			zap.Int("account_id", a.AccountID),
		)
		return 0, err
	}
	return id, nil
}

// ListDue returns scheduled actions due at now, oldest first, so a backlog
// after downtime drains in creation order.
func (r *ActionRepository) ListDue(ctx context.Context, now time.Time) ([]model.ExecutedAction, error) {
	query := `
        SELECT` + executedActionColumns + `
        FROM executed_actions
        WHERE status = 'SCHEDULED' AND scheduled_at <= $1
        ORDER BY scheduled_at ASC
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []model.ExecutedAction{}
	for rows.Next() {
		a, err := scanExecutedAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// MarkTerminal moves a non-terminal action into DONE or FAILED. Returns
// false when the row was already terminal (or missing), which callers treat
// as a no-op under at-least-once delivery.
func (r *ActionRepository) MarkTerminal(ctx context.Context, id int64, status model.ActionStatus, errMsg *string) (bool, error) {
	query := `
        UPDATE executed_actions
        SET status = $1, error_message = $2, updated_at = NOW()
        WHERE id = $3 AND status IN ('PENDING', 'SCHEDULED')
    `
	tag, err := r.db.Exec(ctx, query, string(status), errMsg, id)
	if err != nil {
		r.logger.Error("Failed to update action status",
			zap.Error(err),
			zap.Int64("action_id", id),
			zap.String("status", string(status)),
		)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindLatestDraft returns the most recent prior draft action for the
// thread that has not been sent and is not part of the excluded rule.
// Returns nil when there is none.
func (r *ActionRepository) FindLatestDraft(ctx context.Context, accountID int, threadID string, excludeRuleID int64) (*model.ExecutedAction, error) {
	query := `
        SELECT` + executedActionColumns + `
        FROM executed_actions
        WHERE account_id = $1
          AND thread_id = $2
          AND action_type = 'draft'
          AND rule_id <> $3
          AND draft_id IS NOT NULL
          AND was_draft_sent IS NULL
        ORDER BY created_at DESC
        LIMIT 1
    `
	a, err := scanExecutedAction(r.db.QueryRow(ctx, query, accountID, threadID, excludeRuleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// MarkDraftSuperseded records that the prior draft was deleted unmodified.
func (r *ActionRepository) MarkDraftSuperseded(ctx context.Context, id int64) error {
	query := `
        UPDATE executed_actions
        SET was_draft_sent = FALSE, updated_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to mark draft superseded",
			zap.Error(err),
			zap.Int64("action_id", id),
		)
	}
	return err
}
