package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailguard/internal/repository"
)

// PostgresReserver is the durable fallback backend. An advisory lock (not a
// row lock: the digest row may not exist yet on first use) serializes
// concurrent fallback reservations for the same account; the lock is
// released automatically at transaction end.
type PostgresReserver struct {
	db      *pgxpool.Pool
	digests *repository.DigestRepository
}

func NewPostgresReserver(db *pgxpool.Pool, digests *repository.DigestRepository) *PostgresReserver {
	return &PostgresReserver{db: db, digests: digests}
}

func lockKey(accountID int) string {
	return fmt.Sprintf("summary_quota:%d", accountID)
}

func (r *PostgresReserver) Reserve(ctx context.Context, accountID int, maxPer24h int, now time.Time) (Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// lock_timeout bounds the wait to acquire the advisory lock;
	// statement_timeout bounds each statement run while holding it, so a
	// stuck count or insert cannot pin the lock against every other
	// fallback reservation for this account.
	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '2s'`); err != nil {
		return Reservation{}, fmt.Errorf("failed to set lock timeout: %w", err)
	}
	if _, err := tx.Exec(ctx, `SET LOCAL statement_timeout = '5s'`); err != nil {
		return Reservation{}, fmt.Errorf("failed to set statement timeout: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(accountID)); err != nil {
		return Reservation{}, fmt.Errorf("failed to take quota lock: %w", err)
	}

	count, err := r.digests.CountWindowItems(ctx, tx, accountID, now.Add(-Window))
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to count window items: %w", err)
	}
	if count >= maxPer24h {
		if err := tx.Commit(ctx); err != nil {
			return Reservation{}, fmt.Errorf("failed to commit quota transaction: %w", err)
		}
		return Reservation{Reserved: false, Source: SourceFallback}, nil
	}

	digestID, err := r.digests.FindOrCreatePendingDigest(ctx, tx, accountID)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to resolve pending digest: %w", err)
	}

	itemID, err := r.digests.InsertReservation(ctx, tx, digestID, now)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, fmt.Errorf("failed to commit quota transaction: %w", err)
	}

	return Reservation{
		Reserved: true,
		ID:       strconv.FormatInt(itemID, 10),
		Source:   SourceFallback,
	}, nil
}

func (r *PostgresReserver) Release(ctx context.Context, accountID int, reservationID string) (bool, error) {
	itemID, err := strconv.ParseInt(reservationID, 10, 64)
	if err != nil {
		// Not one of ours; treat like an already-consumed reservation.
		return false, nil
	}
	return r.digests.DeleteReservation(ctx, accountID, itemID)
}

// Consume overwrites the sentinel item with the real summary in place. The
// row's created_at is untouched, so the slot keeps counting in the window.
func (r *PostgresReserver) Consume(ctx context.Context, accountID int, reservationID string, threadID, content string) (bool, error) {
	itemID, err := strconv.ParseInt(reservationID, 10, 64)
	if err != nil {
		return false, nil
	}
	return r.digests.FillReservation(ctx, accountID, itemID, threadID, content)
}

func (r *PostgresReserver) CountActive(ctx context.Context, accountID int, now time.Time) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM digest_items i
        JOIN digests d ON d.id = i.digest_id
        WHERE d.account_id = $1 AND i.created_at > $2
    `
	var count int
	err := r.db.QueryRow(ctx, query, accountID, now.Add(-Window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("quota count failed: %w", err)
	}
	return count, nil
}
