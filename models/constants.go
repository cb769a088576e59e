package models

import "time"

// ✅ Signal statuses
const (
	SignalStatusPending  SignalStatus = "pending"
	SignalStatusAccepted SignalStatus = "accepted"
	SignalStatusIgnored  SignalStatus = "ignored"
	SignalStatusExpired  SignalStatus = "expired"
)

// ✅ Lifetimes used when no configuration overrides them
const (
	DefaultSessionLiveness  = 30 * time.Minute
	DefaultSessionRecordTTL = 24 * time.Hour
	DefaultSignalTTL        = 24 * time.Hour
	DefaultChatTTL          = 30 * 24 * time.Hour
	GeohashPrecision        = 7
	MaxCommonInterests      = 3
	MaxMessageLength        = 500
	MaxSignalMessageLength  = 500
	DefaultChatLastMessage  = "conversation started"
	EmptyChatPreview        = "start the conversation"
	ChatRoomPrefix          = "chat_"
	UserRoomPrefix          = "user_"
	ProvisionalChatIDPrefix = "chat_"
	SessionTokenPrefix      = "session_"
)

// RoomForChat returns the broadcast room used for a chat's participants.
func RoomForChat(chatID string) string {
	return ChatRoomPrefix + chatID
}

// RoomForUser returns the per-user broadcast room.
func RoomForUser(userID string) string {
	return UserRoomPrefix + userID
}
