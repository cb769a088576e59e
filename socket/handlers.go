package socket

import (
	"context"
	"log"
	"strings"
	"time"

	"radar_server/models"
	"radar_server/services"
)

// Events sent back to the endpoint that triggered them
const (
	EventAuthenticated = "authenticated"
	EventAuthError     = "auth_error"
	EventMessageSent   = "message_sent"
	EventMessageError  = "message_error"
	EventSignalSent    = "signal_sent"
	EventSignalError   = "signal_error"
	EventJoinError     = "join_error"
	EventPong          = "pong"
	EventOnlineUsers   = "online_users"
)

const errNotAuthenticated = "not authenticated"

// Authenticator resolves the identity presented on authenticate.
type Authenticator interface {
	Authenticate(token, claimedUserID string) (string, error)
}

type AuthPayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type SendMessagePayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	TempID  string `json:"tempId,omitempty"`
}

type SendSignalPayload struct {
	TargetUserID string `json:"targetUserId"`
	Message      string `json:"message,omitempty"`
}

type messageSentReply struct {
	MessageID string `json:"messageId"`
	TempID    string `json:"tempId,omitempty"`
}

type messageErrorReply struct {
	TempID string `json:"tempId,omitempty"`
	Error  string `json:"error"`
}

type signalSentReply struct {
	Success      bool      `json:"success"`
	TargetUserID string    `json:"targetUserId"`
	SignalID     string    `json:"signalId"`
	ChatID       string    `json:"chatId"`
	Delivered    bool      `json:"delivered"`
	Timestamp    time.Time `json:"timestamp"`
}

type errorReply struct {
	Message string `json:"message"`
}

type joinErrorReply struct {
	ChatID string `json:"chatId"`
	Error  string `json:"error"`
}

type onlineUsersReply struct {
	Users []string `json:"users"`
}

type pongReply struct {
	Timestamp int64 `json:"timestamp"`
}

// Handler turns inbound realtime events into service calls. Its methods take an
// Endpoint so they run the same behind socket.io or a test double.
type Handler struct {
	Registry    *Registry
	Sessions    *services.SessionService // nil relays positions without storing them
	Signals     *services.SignalService
	Chats       *services.ChatService
	Auth        Authenticator // nil trusts the claimed user id
	Timeout     time.Duration
	CallTimeout time.Duration
	Clock       services.Clock

	calls ringing
}

func NewHandler(registry *Registry, sessions *services.SessionService, signals *services.SignalService, chats *services.ChatService, auth Authenticator) *Handler {
	return &Handler{
		Registry:    registry,
		Sessions:    sessions,
		Signals:     signals,
		Chats:       chats,
		Auth:        auth,
		Timeout:     10 * time.Second,
		CallTimeout: DefaultCallTimeout,
	}
}

func (h *Handler) requestContext() (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), h.Timeout)
}

func (h *Handler) Connect(ep Endpoint) {
	log.Printf("🔌 Socket connected: %s", ep.ID())
	h.Registry.Connect(ep)
}

func (h *Handler) Disconnect(ep Endpoint, reason string) {
	log.Printf("🔌 Socket disconnected: %s (%s)", ep.ID(), reason)
	h.Registry.Unregister(ep)
}

// Authenticate binds the endpoint to a user, evicting that user's older endpoint,
// and answers with who else is online.
func (h *Handler) Authenticate(ep Endpoint, payload AuthPayload) {
	claimed := strings.TrimSpace(payload.UserID)
	userID := claimed
	if h.Auth != nil {
		resolved, err := h.Auth.Authenticate(payload.Token, claimed)
		if err != nil {
			log.Printf("❌ Authentication failed on %s: %v", ep.ID(), err)
			ep.Emit(EventAuthError, errorReply{Message: "invalid credentials"})
			return
		}
		userID = resolved
	}
	if userID == "" {
		ep.Emit(EventAuthError, errorReply{Message: "userId is required"})
		return
	}

	h.Registry.Register(userID, ep)
	ep.Emit(EventAuthenticated, AuthPayload{UserID: userID})

	online := h.Registry.OnlineUsers()
	others := make([]string, 0, len(online))
	for _, id := range online {
		if id != userID {
			others = append(others, id)
		}
	}
	ep.Emit(EventOnlineUsers, onlineUsersReply{Users: others})
}

// SendMessage persists and broadcasts a chat message, then acknowledges the sender.
func (h *Handler) SendMessage(ep Endpoint, payload SendMessagePayload) {
	senderID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventMessageError, messageErrorReply{TempID: payload.TempID, Error: errNotAuthenticated})
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	view, err := h.Chats.SendMessage(ctx, payload.ChatID, senderID, payload.Content)
	if err != nil {
		log.Printf("❌ send_message from %s failed: %v", senderID, err)
		ep.Emit(EventMessageError, messageErrorReply{TempID: payload.TempID, Error: models.PublicMessage(err)})
		return
	}
	ep.Emit(EventMessageSent, messageSentReply{MessageID: view.ID, TempID: payload.TempID})
}

// SendSignal sends a signal to the target's active session and pushes new_signal to them.
func (h *Handler) SendSignal(ep Endpoint, payload SendSignalPayload) {
	fromUserID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventSignalError, errorReply{Message: errNotAuthenticated})
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	log.Printf("🎯 Signal from %s to %s", fromUserID, payload.TargetUserID)
	result, err := h.Signals.SendToUser(ctx, fromUserID, payload.TargetUserID, payload.Message)
	if err != nil {
		log.Printf("❌ send_signal from %s failed: %v", fromUserID, err)
		ep.Emit(EventSignalError, errorReply{Message: models.PublicMessage(err)})
		return
	}

	delivered := h.Signals.Deliver(result)
	ep.Emit(EventSignalSent, signalSentReply{
		Success:      true,
		TargetUserID: result.Signal.ToUserID,
		SignalID:     result.Signal.ID,
		ChatID:       result.Signal.ChatID,
		Delivered:    delivered,
		Timestamp:    h.Clock.Now(),
	})
}

// JoinChat subscribes the endpoint to a chat room it is a member of.
func (h *Handler) JoinChat(ep Endpoint, chatID string) {
	userID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventAuthError, errorReply{Message: errNotAuthenticated})
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	if err := h.Chats.CheckMember(ctx, chatID, userID); err != nil {
		ep.Emit(EventJoinError, joinErrorReply{ChatID: chatID, Error: models.PublicMessage(err)})
		return
	}
	h.Registry.JoinRoom(ep, models.RoomForChat(chatID))
	log.Printf("✅ User %s joined chat %s", userID, chatID)
}

func (h *Handler) JoinChats(ep Endpoint, chatIDs []string) {
	for _, chatID := range chatIDs {
		h.JoinChat(ep, chatID)
	}
}

func (h *Handler) LeaveChat(ep Endpoint, chatID string) {
	if _, ok := h.Registry.UserFor(ep); !ok {
		ep.Emit(EventAuthError, errorReply{Message: errNotAuthenticated})
		return
	}
	h.Registry.LeaveRoom(ep, models.RoomForChat(chatID))
	log.Printf("❌ Endpoint %s left chat %s", ep.ID(), chatID)
}

func (h *Handler) Ping(ep Endpoint) {
	ep.Emit(EventPong, pongReply{Timestamp: h.Clock.Now().UnixMilli()})
}
