package model

import "time"

type DigestStatus string

const (
	DigestPending DigestStatus = "PENDING"
	DigestSent    DigestStatus = "SENT"
	DigestFailed  DigestStatus = "FAILED"
)

// ReservationSentinel marks a digest item that holds a quota slot before
// the real summary exists. Counting treats sentinel and real items alike.
const ReservationSentinel = "__reserved__"

type Digest struct {
	ID        int64
	AccountID int
	Status    DigestStatus
	CreatedAt time.Time
}

// DigestItem is one summary (or reservation) inside a digest. CreatedAt is
// the score for the 24-hour sliding window.
type DigestItem struct {
	ID        int64
	DigestID  int64
	ThreadID  string
	Content   string
	CreatedAt time.Time
}

// IsReservation reports whether the item is a quota placeholder rather
// than a real summary.
func (i DigestItem) IsReservation() bool {
	return i.Content == ReservationSentinel
}
