// Package quota bounds how many AI summary generations may start per
// account in a rolling 24-hour window. A reservation holds a slot before
// the summary exists; unused reservations must be released or they expire
// with the window.
package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailguard/pkg/metrics"
)

// Window is the sliding quota window.
const Window = 24 * time.Hour

type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Reservation is the result of a reserve attempt. Only a Reserved=true
// result from Reserve is authoritative for gating.
type Reservation struct {
	Reserved bool
	ID       string
	Source   Source
}

// Reserver is one quota backend. Both implementations must honor the same
// window and limit semantics; callers pick between them only on store
// availability.
type Reserver interface {
	Reserve(ctx context.Context, accountID int, maxPer24h int, now time.Time) (Reservation, error)
	Release(ctx context.Context, accountID int, reservationID string) (bool, error)
	// Consume turns a reservation into a recorded summary. The slot keeps
	// counting against the window, but the id can no longer be released.
	Consume(ctx context.Context, accountID int, reservationID string, threadID, content string) (bool, error)
	CountActive(ctx context.Context, accountID int, now time.Time) (int, error)
}

// Service fronts the primary (Redis) backend with the durable (Postgres)
// fallback. Fallback engages only on primary infrastructure failure.
type Service struct {
	primary  Reserver
	fallback Reserver
	logger   *zap.Logger
}

func NewService(primary, fallback Reserver, logger *zap.Logger) *Service {
	return &Service{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// ReserveSlot atomically claims a summary slot. maxPer24h <= 0 disables the
// quota: the reservation trivially succeeds and nothing is tracked.
func (s *Service) ReserveSlot(ctx context.Context, accountID int, maxPer24h int, now time.Time) (Reservation, error) {
	if maxPer24h <= 0 {
		return Reservation{Reserved: true}, nil
	}

	res, err := s.primary.Reserve(ctx, accountID, maxPer24h, now)
	if err == nil {
		metrics.RecordQuotaReservation(res.Reserved, string(res.Source))
		return res, nil
	}

	s.logger.Warn("Primary quota store unavailable, using fallback",
		zap.Int("account_id", accountID),
		zap.Error(err),
	)

	res, err = s.fallback.Reserve(ctx, accountID, maxPer24h, now)
	if err != nil {
		return Reservation{}, fmt.Errorf("quota fallback failed: %w", err)
	}
	metrics.RecordQuotaReservation(res.Reserved, string(res.Source))
	return res, nil
}

// ReleaseSlot frees an unused reservation on the backend that produced it.
// Releasing a consumed or already-released reservation returns false, not
// an error: double release is expected under retry.
func (s *Service) ReleaseSlot(ctx context.Context, accountID int, reservationID string, source Source) (bool, error) {
	if reservationID == "" {
		return false, nil
	}
	switch source {
	case SourceFallback:
		return s.fallback.Release(ctx, accountID, reservationID)
	default:
		return s.primary.Release(ctx, accountID, reservationID)
	}
}

// ConsumeSlot records the finished summary against the reservation on the
// backend that produced it. Afterwards ReleaseSlot on the same id reports
// not-released; the slot counts until the window slides past it.
func (s *Service) ConsumeSlot(ctx context.Context, accountID int, reservationID string, source Source, threadID, content string) (bool, error) {
	if reservationID == "" {
		return false, nil
	}
	switch source {
	case SourceFallback:
		return s.fallback.Consume(ctx, accountID, reservationID, threadID, content)
	default:
		return s.primary.Consume(ctx, accountID, reservationID, threadID, content)
	}
}

// HasReachedLimit is a cheap read-only pre-flight check for UI. It is
// never authoritative: only ReserveSlot's atomic result gates execution.
func (s *Service) HasReachedLimit(ctx context.Context, accountID int, maxPer24h int, now time.Time) (bool, error) {
	if maxPer24h <= 0 {
		return false, nil
	}

	count, err := s.primary.CountActive(ctx, accountID, now)
	if err != nil {
		count, err = s.fallback.CountActive(ctx, accountID, now)
		if err != nil {
			return false, fmt.Errorf("quota count failed: %w", err)
		}
	}
	return count >= maxPer24h, nil
}
