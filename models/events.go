package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Event names emitted to realtime endpoints
const (
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventNewSignal      = "new_signal"
	EventSignalAccepted = "signal_accepted"
	EventSignalDeclined = "signal_declined"
	EventNewMessage     = "new_message"
	EventChatUpdated    = "chat_updated"

	EventUserPositionUpdated = "user_position_updated"
	EventIncomingCall        = "incoming-call"
	EventCallTimeout         = "call-timeout"
	EventCallAccepted        = "call-accepted"
	EventCallRejected        = "call-rejected"
	EventCallEnded           = "call-ended"
	EventWebRTCSignal        = "webrtc-signal"
)

// Event is a payload with a fixed shape for one event name.
type Event interface {
	EventName() string
	Validate() error
}

var errMissingField = errors.New("event payload is missing a required field")

type UserOnlineEvent struct {
	UserID string `json:"userId"`
}

func (UserOnlineEvent) EventName() string { return EventUserOnline }

func (e UserOnlineEvent) Validate() error {
	if e.UserID == "" {
		return errMissingField
	}
	return nil
}

type UserOfflineEvent struct {
	UserID string `json:"userId"`
}

func (UserOfflineEvent) EventName() string { return EventUserOffline }

func (e UserOfflineEvent) Validate() error {
	if e.UserID == "" {
		return errMissingField
	}
	return nil
}

// NewSignalEvent is delivered to the recipient of a signal.
type NewSignalEvent struct {
	ID              string        `json:"id"`
	FromUser        PublicProfile `json:"fromUser"`
	ToUser          string        `json:"toUser"`
	ChatToken       string        `json:"chatToken"`
	Message         string        `json:"message,omitempty"`
	CommonInterests []string      `json:"commonInterests"`
	Status          SignalStatus  `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
}

func (NewSignalEvent) EventName() string { return EventNewSignal }

func (e NewSignalEvent) Validate() error {
	if e.ID == "" || e.FromUser.ID == "" || e.ToUser == "" || e.ChatToken == "" {
		return errMissingField
	}
	return nil
}

type SignalAcceptedEvent struct {
	AcceptedBy PublicProfile `json:"acceptedBy"`
	ChatID     string        `json:"chatId"`
	AcceptedAt time.Time     `json:"acceptedAt"`
}

func (SignalAcceptedEvent) EventName() string { return EventSignalAccepted }

func (e SignalAcceptedEvent) Validate() error {
	if e.AcceptedBy.ID == "" || e.ChatID == "" {
		return errMissingField
	}
	return nil
}

type SignalDeclinedEvent struct {
	DeclinedBy PublicProfile `json:"declinedBy"`
	ChatID     string        `json:"chatId"`
}

func (SignalDeclinedEvent) EventName() string { return EventSignalDeclined }

func (e SignalDeclinedEvent) Validate() error {
	if e.DeclinedBy.ID == "" {
		return errMissingField
	}
	return nil
}

type NewMessageEvent struct {
	ID        string        `json:"id"`
	Sender    PublicProfile `json:"sender"`
	Content   string        `json:"content"`
	Chat      string        `json:"chat"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (NewMessageEvent) EventName() string { return EventNewMessage }

func (e NewMessageEvent) Validate() error {
	if e.ID == "" || e.Sender.ID == "" || e.Chat == "" {
		return errMissingField
	}
	return nil
}

type ChatUpdatedEvent struct {
	ID           string    `json:"id"`
	LastActivity time.Time `json:"lastActivity"`
	LastMessage  string    `json:"lastMessage"`
}

func (ChatUpdatedEvent) EventName() string { return EventChatUpdated }

func (e ChatUpdatedEvent) Validate() error {
	if e.ID == "" {
		return errMissingField
	}
	return nil
}

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UserPositionUpdatedEvent is broadcast to every other endpoint when a user moves.
type UserPositionUpdatedEvent struct {
	UserID    string    `json:"userId"`
	Position  Position  `json:"position"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (UserPositionUpdatedEvent) EventName() string { return EventUserPositionUpdated }

func (e UserPositionUpdatedEvent) Validate() error {
	if e.UserID == "" {
		return errMissingField
	}
	return nil
}

// Call types a caller may ring with
const (
	CallTypeVideo = "video"
	CallTypeAudio = "audio"
)

// IncomingCallEvent rings the callee.
type IncomingCallEvent struct {
	From      string        `json:"from"`
	FromUser  PublicProfile `json:"fromUser"`
	ChatID    string        `json:"chatId,omitempty"`
	CallType  string        `json:"callType"`
	Timestamp time.Time     `json:"timestamp"`
}

func (IncomingCallEvent) EventName() string { return EventIncomingCall }

func (e IncomingCallEvent) Validate() error {
	if e.From == "" || e.FromUser.ID == "" || e.CallType == "" {
		return errMissingField
	}
	return nil
}

// CallTimeoutEvent tells both sides an unanswered call stopped ringing. The
// callee's copy carries From, the caller's copy carries To.
type CallTimeoutEvent struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	ChatID string `json:"chatId,omitempty"`
}

func (CallTimeoutEvent) EventName() string { return EventCallTimeout }

func (e CallTimeoutEvent) Validate() error {
	if e.From == "" && e.To == "" {
		return errMissingField
	}
	return nil
}

type CallAcceptedEvent struct {
	From      string    `json:"from"`
	ChatID    string    `json:"chatId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (CallAcceptedEvent) EventName() string { return EventCallAccepted }

func (e CallAcceptedEvent) Validate() error {
	if e.From == "" {
		return errMissingField
	}
	return nil
}

type CallRejectedEvent struct {
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

func (CallRejectedEvent) EventName() string { return EventCallRejected }

func (e CallRejectedEvent) Validate() error {
	if e.From == "" {
		return errMissingField
	}
	return nil
}

type CallEndedEvent struct {
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

func (CallEndedEvent) EventName() string { return EventCallEnded }

func (e CallEndedEvent) Validate() error {
	if e.From == "" {
		return errMissingField
	}
	return nil
}

// WebRTCSignalEvent relays an offer, answer or ICE candidate between peers.
// The session description or candidate is passed through untouched.
type WebRTCSignalEvent struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (WebRTCSignalEvent) EventName() string { return EventWebRTCSignal }

func (e WebRTCSignalEvent) Validate() error {
	if e.From == "" || e.To == "" || e.Type == "" {
		return errMissingField
	}
	if len(e.SDP) == 0 && len(e.Candidate) == 0 {
		return errMissingField
	}
	return nil
}
