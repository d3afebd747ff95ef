package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailguard/internal/model"
)

type DigestRepository struct {
	db *pgxpool.Pool
}

func NewDigestRepository(db *pgxpool.Pool) *DigestRepository {
	return &DigestRepository{db: db}
}

// CountWindowItems counts digest items for the account created after since.
// Reservations and real summaries count alike. Must run inside the quota
// transaction, so it takes the tx.
func (r *DigestRepository) CountWindowItems(ctx context.Context, tx pgx.Tx, accountID int, since time.Time) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM digest_items i
        JOIN digests d ON d.id = i.digest_id
        WHERE d.account_id = $1 AND i.created_at > $2
    `
	var count int
	err := tx.QueryRow(ctx, query, accountID, since).Scan(&count)
	return count, err
}

// FindOrCreatePendingDigest returns the account's open digest, creating one
// when none exists.
func (r *DigestRepository) FindOrCreatePendingDigest(ctx context.Context, tx pgx.Tx, accountID int) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
        SELECT id FROM digests
        WHERE account_id = $1 AND status = $2
        ORDER BY created_at DESC
        LIMIT 1
    `, accountID, string(model.DigestPending)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = tx.QueryRow(ctx, `
        INSERT INTO digests (account_id, status, created_at)
        VALUES ($1, $2, NOW())
        RETURNING id
    `, accountID, string(model.DigestPending)).Scan(&id)
	return id, err
}

// InsertReservation inserts a sentinel item that holds a quota slot; its id
// becomes the reservation id.
func (r *DigestRepository) InsertReservation(ctx context.Context, tx pgx.Tx, digestID int64, now time.Time) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
        INSERT INTO digest_items (digest_id, thread_id, content, created_at)
        VALUES ($1, '', $2, $3)
        RETURNING id
    `, digestID, model.ReservationSentinel, now).Scan(&id)
	return id, err
}

// FillReservation consumes a sentinel item into a real summary. After
// this, releasing the reservation id reports not-released, which callers
// expect under retry.
func (r *DigestRepository) FillReservation(ctx context.Context, accountID int, itemID int64, threadID, content string) (bool, error) {
	query := `
        UPDATE digest_items i
        SET thread_id = $4, content = $5
        FROM digests d
        WHERE i.id = $1
          AND i.digest_id = d.id
          AND d.account_id = $2
          AND i.content = $3
    `
	tag, err := r.db.Exec(ctx, query, itemID, accountID, model.ReservationSentinel, threadID, content)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteReservation removes an unused sentinel item. Returns false when the
// item is gone or was already consumed into a real summary.
func (r *DigestRepository) DeleteReservation(ctx context.Context, accountID int, itemID int64) (bool, error) {
	query := `
        DELETE FROM digest_items i
        USING digests d
        WHERE i.id = $1
          AND i.digest_id = d.id
          AND d.account_id = $2
          AND i.content = $3
    `
	tag, err := r.db.Exec(ctx, query, itemID, accountID, model.ReservationSentinel)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
