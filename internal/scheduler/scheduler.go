// Package scheduler tracks delayed actions through their lifecycle:
// PENDING or SCHEDULED to DONE or FAILED, terminal states absorbing.
// Dispatch is at-least-once; the executed side effect must be idempotent.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"mailguard/internal/model"
)

// ActionStore is the persistence surface, implemented by
// repository.ActionRepository.
type ActionStore interface {
	Insert(ctx context.Context, a *model.ExecutedAction) (int64, error)
	ListDue(ctx context.Context, now time.Time) ([]model.ExecutedAction, error)
	MarkTerminal(ctx context.Context, id int64, status model.ActionStatus, errMsg *string) (bool, error)
}

type Service struct {
	store  ActionStore
	logger *zap.Logger
}

func NewService(store ActionStore, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Schedule records a proposed action. A positive delay makes it SCHEDULED
// for later dispatch; otherwise it is PENDING for immediate execution.
func (s *Service) Schedule(ctx context.Context, a *model.ExecutedAction, delayMs int64, now time.Time) (int64, error) {
	if delayMs > 0 {
		a.Status = model.StatusScheduled
		a.ScheduledAt = ComputeScheduledAt(now, delayMs)
	} else {
		a.Status = model.StatusPending
		a.ScheduledAt = now
	}

	id, err := s.store.Insert(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule action: %w", err)
	}
	a.ID = id

	s.logger.Info("Action scheduled",
		zap.Int64("action_id", id),
		zap.String("action_type", string(a.Type)),
		zap.String("status", string(a.Status)),
		zap.Time("scheduled_at", a.ScheduledAt),
	)
	return id, nil
}

// ListReady returns scheduled actions due at now, oldest due first. A
// backlog after downtime drains in creation order, not reverse.
func (s *Service) ListReady(ctx context.Context, now time.Time) ([]model.ExecutedAction, error) {
	actions, err := s.store.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready actions: %w", err)
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].ScheduledAt.Before(actions[j].ScheduledAt)
	})
	return actions, nil
}

// MarkExecuted moves the action to DONE. Calling it on an already-terminal
// row is a no-op: a retrying orchestrator may deliver twice.
func (s *Service) MarkExecuted(ctx context.Context, id int64) error {
	updated, err := s.store.MarkTerminal(ctx, id, model.StatusDone, nil)
	if err != nil {
		return fmt.Errorf("failed to mark action executed: %w", err)
	}
	if !updated {
		s.logger.Debug("MarkExecuted on terminal action, ignoring", zap.Int64("action_id", id))
	}
	return nil
}

// MarkFailed moves the action to FAILED with the error message. Idempotent
// like MarkExecuted.
func (s *Service) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	updated, err := s.store.MarkTerminal(ctx, id, model.StatusFailed, &errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark action failed: %w", err)
	}
	if !updated {
		s.logger.Debug("MarkFailed on terminal action, ignoring", zap.Int64("action_id", id))
	}
	return nil
}
