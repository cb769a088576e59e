package models

import "time"

// User is the profile record owned by the profile service. This core only reads it.
type User struct {
	ID             string    `dynamodbav:"userId" json:"id"` // ✅ Partition Key
	Username       string    `dynamodbav:"username" json:"username"`
	ProfilePicture string    `dynamodbav:"profilePicture,omitempty" json:"profilePicture,omitempty"` // S3 key or absolute URL
	Bio            string    `dynamodbav:"bio,omitempty" json:"bio,omitempty"`
	Interests      []string  `dynamodbav:"interests,omitempty" json:"interests,omitempty"`
	CreatedAt      time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// PublicProfile is the subset of a user shown to other users.
type PublicProfile struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
	Interests      []string `json:"interests,omitempty"`
}

// UsersTable is the DynamoDB table name for user profiles
const UsersTable = "Users"
