package models

import "time"

// Session is a user's last known location and liveness.
type Session struct {
	UserID      string    `dynamodbav:"userId" json:"userId"`       // ✅ Partition Key
	SessionID   string    `dynamodbav:"sessionId" json:"sessionId"` // ✅ GSI (unique token handed to peers)
	Geohash     string    `dynamodbav:"lastKnownGeohash" json:"lastKnownGeohash"`
	Lat         float64   `dynamodbav:"lat" json:"lat"`
	Lon         float64   `dynamodbav:"lon" json:"lon"`
	IsActive    bool      `dynamodbav:"isActive" json:"isActive"`
	LastUpdated time.Time `dynamodbav:"lastUpdated" json:"lastUpdated"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt   int64     `dynamodbav:"expiresAt,omitempty" json:"-"` // DynamoDB TTL (epoch seconds)
}

// SessionTokenFor returns the deterministic session token of a user.
func SessionTokenFor(userID string) string {
	return SessionTokenPrefix + userID
}

// IsLive reports whether the session is active and was updated at or after since.
func (s *Session) IsLive(since time.Time) bool {
	return s.IsActive && !s.LastUpdated.Before(since)
}

// SessionsTable is the DynamoDB table name for sessions
const SessionsTable = "UserSessions"

// DynamoDB GSIs on the sessions table
const (
	SessionIDIndex = "sessionId-index"
	GeohashIndex   = "lastKnownGeohash-index"
)
