package models

import "time"

type Message struct {
	ChatID    string    `dynamodbav:"chatId" json:"chat"` // ✅ Partition Key
	SortKey   string    `dynamodbav:"sortKey" json:"-"`   // ✅ Sort Key (createdAt#id)
	ID        string    `dynamodbav:"id" json:"id"`
	SenderID  string    `dynamodbav:"senderId" json:"senderId"`
	Content   string    `dynamodbav:"content" json:"content"`
	Read      bool      `dynamodbav:"read" json:"read"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// MessageView is a message denormalized with its sender's public fields.
type MessageView struct {
	ID        string        `json:"id"`
	Sender    PublicProfile `json:"sender"`
	Content   string        `json:"content"`
	Chat      string        `json:"chat"`
	CreatedAt time.Time     `json:"createdAt"`
}

// MessagesTable is the DynamoDB table name for chat messages
const MessagesTable = "Messages"
