// Package store defines the persistence contract for chats and the user
// directory. Implementations must provide per-chat serialization for Append
// and MarkRead and an atomic lookup-or-create for direct chats.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/milanh34/linkUp/internal/model"
)

var (
	// ErrNotFound is returned when a chat or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotParticipant is returned when the requester is not in the chat.
	ErrNotParticipant = errors.New("not a participant")
	// ErrNotAdmin is returned when a group mutation requires the admin.
	ErrNotAdmin = errors.New("not the group admin")
	// ErrInvalid is returned for malformed input reaching the store.
	ErrInvalid = errors.New("invalid input")
)

// ChatStore owns Chat aggregates. All returned chats are detached copies;
// mutations happen only through the store methods.
type ChatStore interface {
	// FindOrCreateDirect returns the direct chat between a and b, creating it
	// with both cursors at -1 if absent. Exactly one chat exists per unordered
	// pair even under concurrent callers; created reports whether this call
	// inserted it.
	FindOrCreateDirect(ctx context.Context, a, b string, now time.Time) (chat *model.Chat, created bool, err error)

	// CreateGroup persists a new group chat (admin as sole participant).
	CreateGroup(ctx context.Context, chat *model.Chat) error

	// Get returns the fully hydrated chat or ErrNotFound.
	Get(ctx context.Context, chatID string) (*model.Chat, error)

	// ListForUser returns every chat containing userID, fully hydrated, in no
	// particular order.
	ListForUser(ctx context.Context, userID string) ([]*model.Chat, error)

	// Append adds a message to the end of the chat's sequence, assigns its
	// index and SentAt, bumps TotalMessages and sets LastMessageAt in one
	// atomic step, serialized against other Append/MarkRead calls on the same
	// chat. Stamping SentAt inside the serialized section keeps timestamp
	// order in agreement with insertion order.
	Append(ctx context.Context, chatID string, msg *model.Message) (*model.Message, error)

	// MarkRead flags every message after userID's cursor not sent by userID,
	// records an idempotent read receipt, then moves the cursor to the end of
	// the sequence. Reports whether any message was newly marked.
	MarkRead(ctx context.Context, chatID, userID string, at time.Time) (changed bool, err error)

	// UpdateGroupSettings replaces whichever of name/avatar is non-nil.
	UpdateGroupSettings(ctx context.Context, chatID string, name, avatarURL *string) error

	// AddParticipants appends the given users at cursor -1, silently skipping
	// ids already present.
	AddParticipants(ctx context.Context, chatID string, userIDs []string, now time.Time) error

	// RemoveParticipant drops the participant if present; no-op otherwise.
	RemoveParticipant(ctx context.Context, chatID, userID string) error

	// Delete permanently removes the chat and its messages.
	Delete(ctx context.Context, chatID string) error
}

// UserDirectory resolves profile fields for read-time joins. Identity storage
// itself is owned by the external auth system.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*model.UserProfile, error)
	GetMany(ctx context.Context, ids []string) (map[string]model.UserProfile, error)
}

// DirectKey builds the canonical unordered-pair key used for direct-chat
// dedup. Both orders of the same pair map to one key.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
