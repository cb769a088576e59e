// Package store is the durable persistence layer for sessions, signals, chats,
// messages and the user profiles this service reads.
//
// Every backend enforces the same uniqueness rules: one session per user, at
// most one pending (unexpired) signal per unordered pair of users and at most
// one live chat per unordered pair, where a chat past its expiresAt no longer
// counts. Violations come back as the sentinel errors in the models package.
package store

import (
	"context"
	"time"

	"radar_server/models"
)

type SessionRepository interface {
	// UpsertSession writes the session keyed by its user, replacing any previous record.
	UpsertSession(ctx context.Context, session *models.Session) error
	DeactivateSession(ctx context.Context, userID string) error
	GetSessionByUser(ctx context.Context, userID string) (*models.Session, error)
	GetSessionByToken(ctx context.Context, sessionID string) (*models.Session, error)
	// ListLiveSessionsByGeohash returns active sessions in the bucket updated at or after since,
	// excluding excludeUserID.
	ListLiveSessionsByGeohash(ctx context.Context, geohash, excludeUserID string, since time.Time) ([]models.Session, error)
}

type SignalRepository interface {
	// FindBlockingSignal returns a pending, unexpired signal from -> to, or ErrNotFound.
	FindBlockingSignal(ctx context.Context, fromUserID, toUserID string, now time.Time) (*models.Signal, error)
	// CreateSignal inserts a pending signal. ErrPendingSignalExists when either
	// direction of the pair already has a blocking signal.
	CreateSignal(ctx context.Context, signal *models.Signal) error
	GetSignal(ctx context.Context, signalID string) (*models.Signal, error)
	// ResolveSignal persists a terminal status for a pending signal.
	// ErrSignalNotPending when it was resolved concurrently.
	ResolveSignal(ctx context.Context, signal *models.Signal) error
	// AcceptSignal marks the signal accepted and creates its chat in one step.
	// ErrSignalNotPending or ErrChatExists when a guard fails; nothing is written then.
	// A chat of the pair that lapsed before chat.CreatedAt does not block.
	AcceptSignal(ctx context.Context, signal *models.Signal, chat *models.Chat) error
	ListSignalsForRecipient(ctx context.Context, userID string) ([]models.Signal, error)
	DeleteSignal(ctx context.Context, signalID string) error
}

type ChatRepository interface {
	// FindActiveChatBetween looks up a chat for the unordered pair that is live at now, or ErrNotFound.
	FindActiveChatBetween(ctx context.Context, userA, userB string, now time.Time) (*models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	// ListActiveChatsForUser returns the user's chats that are live at now, most recent activity first.
	ListActiveChatsForUser(ctx context.Context, userID string, now time.Time) ([]models.Chat, error)
	// TouchChat records a new last message and pushes the expiry out. A touch older
	// than the stored lastActivity is ignored so concurrent senders cannot move the
	// summary backwards. ErrNotFound when the chat is gone.
	TouchChat(ctx context.Context, chat *models.Chat, lastActivity time.Time, lastMessage string, expiresAt time.Time) error
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	// ListMessages returns a chat's messages oldest first.
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	PutUser(ctx context.Context, user *models.User) error
}

// Store is the full persistence collaborator.
type Store interface {
	SessionRepository
	SignalRepository
	ChatRepository
	MessageRepository
	UserRepository
}

// MessageSortKey orders messages by creation time inside a chat partition.
// The timestamp is fixed width so that string order matches time order.
func MessageSortKey(createdAt time.Time, messageID string) string {
	return createdAt.UTC().Format("2006-01-02T15:04:05.000000000Z") + "#" + messageID
}
