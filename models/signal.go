package models

import "time"

// SignalStatus is the lifecycle state of a signal.
type SignalStatus string

// Signal is a one-directional connection request between two users.
type Signal struct {
	ID                string       `dynamodbav:"id" json:"id"` // ✅ Partition Key
	FromUserID        string       `dynamodbav:"fromUserId" json:"fromUserId"`
	ToUserID          string       `dynamodbav:"toUserId" json:"toUserId"` // ✅ GSI
	FromUserSessionID string       `dynamodbav:"fromUserSessionId" json:"fromUserSessionId"`
	ToUserSessionID   string       `dynamodbav:"toUserSessionId" json:"toUserSessionId"`
	Message           string       `dynamodbav:"message,omitempty" json:"message,omitempty"`
	CommonInterests   []string     `dynamodbav:"commonInterests" json:"commonInterests"`
	Status            SignalStatus `dynamodbav:"status" json:"status"`
	ChatID            string       `dynamodbav:"chatId" json:"chatId"` // provisional token until accepted
	CreatedAt         time.Time    `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt         time.Time    `dynamodbav:"expiresAt" json:"expiresAt"`
	RespondedAt       *time.Time   `dynamodbav:"respondedAt,omitempty" json:"respondedAt,omitempty"`
}

// EffectiveStatus derives the status at now: a pending signal past its expiry reads as expired.
func (s *Signal) EffectiveStatus(now time.Time) SignalStatus {
	if s.Status == SignalStatusPending && !now.Before(s.ExpiresAt) {
		return SignalStatusExpired
	}
	return s.Status
}

// IsBlocking reports whether the signal still prevents a new signal between its pair.
func (s *Signal) IsBlocking(now time.Time) bool {
	return s.EffectiveStatus(now) == SignalStatusPending
}

// Involves reports whether userID is the sender or the recipient.
func (s *Signal) Involves(userID string) bool {
	return s.FromUserID == userID || s.ToUserID == userID
}

// PairKey returns an order-independent key for two user ids.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "#" + b
}

// SignalsTable is the DynamoDB table name for signals
const SignalsTable = "Signals"

// ToUserIndex is the GSI used to list received signals
const ToUserIndex = "toUserId-index"

// UniqueKeysTable holds one guard item per unique value: the pending signal of a
// pair, the active chat of a pair and every provisional chat token
const UniqueKeysTable = "UniqueKeys"
