package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a message or draft no longer exists on the
// provider side.
var ErrNotFound = errors.New("mailbox: not found")

// Message is the provider-side view of an email, fetched only when a
// policy condition or dedup check needs live mailbox state.
type Message struct {
	ID         string
	ThreadID   string
	From       string
	Subject    string
	Labels     []string
	ReceivedAt time.Time
}

// Draft is the current provider-side content of a generated draft.
type Draft struct {
	ID      string
	Content string
}

// Accessor is the read/mutate surface this core consumes. Implementations
// (Gmail, Outlook, JMAP clients) live outside this module.
type Accessor interface {
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetLabels(ctx context.Context, resourceID string) ([]string, error)
	GetDraft(ctx context.Context, draftID string) (*Draft, error)
	DeleteDraft(ctx context.Context, draftID string) error
}
