package models

import "time"

// Chat is an accepted, ongoing conversation between two users.
type Chat struct {
	ID                  string    `dynamodbav:"id" json:"id"`                     // ✅ Partition Key
	Participant1        string    `dynamodbav:"participant1" json:"participant1"` // ✅ GSI (signal sender)
	Participant2        string    `dynamodbav:"participant2" json:"participant2"` // ✅ GSI (acceptor)
	InitiatedFromSignal string    `dynamodbav:"initiatedFromSignal,omitempty" json:"initiatedFromSignal,omitempty"`
	IsActive            bool      `dynamodbav:"isActive" json:"isActive"`
	LastActivity        time.Time `dynamodbav:"lastActivity" json:"lastActivity"`
	LastMessage         string    `dynamodbav:"lastMessage" json:"lastMessage"`
	CreatedAt           time.Time `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt           time.Time `dynamodbav:"expiresAt" json:"expiresAt"`
}

// IsLive reports whether the chat is active and has not passed its expiry at now.
func (c *Chat) IsLive(now time.Time) bool {
	return c.IsActive && now.Before(c.ExpiresAt)
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	return c.Participant1 == userID || c.Participant2 == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Chat) OtherParticipant(userID string) string {
	if c.Participant1 == userID {
		return c.Participant2
	}
	return c.Participant1
}

// ChatSummary is a chat as listed to one of its participants.
type ChatSummary struct {
	ID           string        `json:"id"`
	OtherUser    PublicProfile `json:"otherUser"`
	LastActivity time.Time     `json:"lastActivity"`
	LastMessage  string        `json:"lastMessage"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	IsActive     bool          `json:"isActive"`
}

// ChatsTable is the DynamoDB table name for chats
const ChatsTable = "Chats"

// DynamoDB GSIs on the chats table
const (
	Participant1Index = "participant1-index"
	Participant2Index = "participant2-index"
)
