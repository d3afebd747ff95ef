// Package dedup supersedes agent drafts the user left untouched, so a
// re-run on the same thread does not pile up near-identical drafts.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mailguard/internal/mailbox"
	"mailguard/internal/model"
	"mailguard/pkg/metrics"
)

// SimilarityThreshold: at or above this score the user is considered not
// to have edited the draft, and it is safe to delete.
const SimilarityThreshold = 0.9

// ActionStore is the slice of the execution record the deduplicator needs.
// Implemented by repository.ActionRepository.
type ActionStore interface {
	FindLatestDraft(ctx context.Context, accountID int, threadID string, excludeRuleID int64) (*model.ExecutedAction, error)
	MarkDraftSuperseded(ctx context.Context, id int64) error
}

type Service struct {
	store   ActionStore
	mailbox mailbox.Accessor
	logger  *zap.Logger
}

func NewService(store ActionStore, mb mailbox.Accessor, logger *zap.Logger) *Service {
	return &Service{store: store, mailbox: mb, logger: logger}
}

// SupersedePriorDraft finds the thread's latest unsent prior draft
// (excluding the currently executing rule), compares its live content
// against the snapshot taken at generation time, and deletes it when the
// user left it unmodified. Returns whether a draft was superseded. Absence
// of a prior draft, or the draft having disappeared, is a no-op.
func (s *Service) SupersedePriorDraft(ctx context.Context, accountID int, threadID string, excludeRuleID int64) (bool, error) {
	prior, err := s.store.FindLatestDraft(ctx, accountID, threadID, excludeRuleID)
	if err != nil {
		return false, fmt.Errorf("failed to find prior draft: %w", err)
	}
	if prior == nil || prior.DraftID == nil || prior.Content == nil {
		return false, nil
	}

	draft, err := s.mailbox.GetDraft(ctx, *prior.DraftID)
	if err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch draft %s: %w", *prior.DraftID, err)
	}

	score := Similarity(StripQuoted(draft.Content), StripQuoted(*prior.Content))
	if score < SimilarityThreshold {
		s.logger.Debug("Prior draft was edited by the user, keeping it",
			zap.Int64("action_id", prior.ID),
			zap.String("thread_id", threadID),
			zap.Float64("similarity", score),
		)
		return false, nil
	}

	if err := s.mailbox.DeleteDraft(ctx, *prior.DraftID); err != nil && !errors.Is(err, mailbox.ErrNotFound) {
		return false, fmt.Errorf("failed to delete draft %s: %w", *prior.DraftID, err)
	}

	if err := s.store.MarkDraftSuperseded(ctx, prior.ID); err != nil {
		return false, fmt.Errorf("failed to mark draft superseded: %w", err)
	}

	metrics.DraftSupersededCount.Inc()
	s.logger.Info("Superseded unmodified prior draft",
		zap.Int64("action_id", prior.ID),
		zap.String("thread_id", threadID),
		zap.Float64("similarity", score),
	)
	return true, nil
}
