package socket

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"radar_server/models"
	"radar_server/utils"
)

// DefaultCallTimeout is how long an unanswered call keeps ringing.
const DefaultCallTimeout = 30 * time.Second

// Events sent back to the endpoint that triggered a call or position relay
const (
	EventCallError     = "call-error"
	EventPositionError = "position_error"
)

// Call responses
const (
	CallAccepted = "accepted"
	CallRejected = "rejected"
)

type UpdatePositionPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type CallRequestPayload struct {
	To       string `json:"to"`
	ChatID   string `json:"chatId,omitempty"`
	CallType string `json:"callType,omitempty"`
}

// CallResponsePayload answers a ring. To is the caller.
type CallResponsePayload struct {
	To     string `json:"to"`
	Type   string `json:"type"`
	ChatID string `json:"chatId,omitempty"`
}

type CallEndPayload struct {
	To string `json:"to"`
}

type WebRTCSignalPayload struct {
	To        string          `json:"to"`
	Type      string          `json:"type"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ringing holds the pending timeout of every unanswered call, keyed caller then callee.
type ringing struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func callKey(caller, callee string) string {
	return caller + "_" + callee
}

// start arms fire for the pair, replacing a ring already pending for it. fire
// runs at most once and never after stop has removed the pair.
func (r *ringing) start(caller, callee string, after time.Duration, fire func()) {
	key := callKey(caller, callee)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers == nil {
		r.timers = make(map[string]*time.Timer)
	}
	if old, ok := r.timers[key]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		r.mu.Lock()
		current, ok := r.timers[key]
		if !ok || current != timer {
			r.mu.Unlock()
			return
		}
		delete(r.timers, key)
		r.mu.Unlock()
		fire()
	})
	r.timers[key] = timer
}

// stop cancels the pending ring of the pair and reports whether one existed.
func (r *ringing) stop(caller, callee string) bool {
	key := callKey(caller, callee)
	r.mu.Lock()
	defer r.mu.Unlock()
	timer, ok := r.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, key)
	return true
}

func (r *ringing) pending(caller, callee string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[callKey(caller, callee)]
	return ok
}

// notify validates event before sending it to the user's endpoint.
func (h *Handler) notify(userID string, event models.Event) bool {
	return NewDispatcher(h.Registry).NotifyUser(userID, event)
}

func (h *Handler) callTimeout() time.Duration {
	if h.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return h.CallTimeout
}

// UpdatePosition records the endpoint user's location and tells every other
// endpoint where they are now.
func (h *Handler) UpdatePosition(ep Endpoint, payload UpdatePositionPayload) {
	userID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventPositionError, errorReply{Message: errNotAuthenticated})
		return
	}
	if !utils.ValidCoordinates(payload.Latitude, payload.Longitude) {
		ep.Emit(EventPositionError, errorReply{Message: "invalid coordinates"})
		return
	}

	updatedAt := h.Clock.Now()
	if h.Sessions != nil {
		ctx, cancel := h.requestContext()
		defer cancel()
		session, err := h.Sessions.UpsertSession(ctx, userID, payload.Latitude, payload.Longitude)
		if err != nil {
			log.Printf("❌ update_position from %s failed: %v", userID, err)
			ep.Emit(EventPositionError, errorReply{Message: models.PublicMessage(err)})
			return
		}
		updatedAt = session.LastUpdated
	}

	event := models.UserPositionUpdatedEvent{
		UserID:    userID,
		Position:  models.Position{Latitude: payload.Latitude, Longitude: payload.Longitude},
		UpdatedAt: updatedAt,
	}
	reached := h.Registry.BroadcastExcept(ep, event.EventName(), event)
	log.Printf("📍 Position of %s relayed to %d endpoints", userID, reached)
}

// CallRequest rings the callee and arms the call timeout for the pair.
func (h *Handler) CallRequest(ep Endpoint, payload CallRequestPayload) {
	callerID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventCallError, errorReply{Message: errNotAuthenticated})
		return
	}
	calleeID := strings.TrimSpace(payload.To)
	if calleeID == "" || calleeID == callerID {
		ep.Emit(EventCallError, errorReply{Message: "a call needs another user"})
		return
	}
	callType := payload.CallType
	switch callType {
	case "":
		callType = models.CallTypeVideo
	case models.CallTypeVideo, models.CallTypeAudio:
	default:
		ep.Emit(EventCallError, errorReply{Message: "callType must be video or audio"})
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	if payload.ChatID != "" {
		if err := h.Chats.CheckMember(ctx, payload.ChatID, callerID); err != nil {
			ep.Emit(EventCallError, errorReply{Message: models.PublicMessage(err)})
			return
		}
	}
	fromUser := h.callerProfile(ctx, callerID)

	log.Printf("📞 %s call from %s to %s", callType, callerID, calleeID)
	delivered := h.notify(calleeID, models.IncomingCallEvent{
		From:      callerID,
		FromUser:  fromUser,
		ChatID:    payload.ChatID,
		CallType:  callType,
		Timestamp: h.Clock.Now(),
	})
	if !delivered {
		ep.Emit(EventCallError, errorReply{Message: "user not connected"})
		return
	}

	chatID := payload.ChatID
	h.calls.start(callerID, calleeID, h.callTimeout(), func() {
		log.Printf("⏰ Call from %s to %s timed out", callerID, calleeID)
		h.notify(calleeID, models.CallTimeoutEvent{From: callerID, ChatID: chatID})
		h.notify(callerID, models.CallTimeoutEvent{To: calleeID, ChatID: chatID})
	})
}

func (h *Handler) callerProfile(ctx context.Context, userID string) models.PublicProfile {
	if h.Chats == nil || h.Chats.Profiles == nil {
		return models.PublicProfile{ID: userID, Username: userID}
	}
	profile, err := h.Chats.Profiles.GetPublicProfile(ctx, userID)
	if err != nil {
		log.Printf("⚠️ No caller profile for %s: %v", userID, err)
		return models.PublicProfile{ID: userID, Username: userID}
	}
	return profile
}

// CallResponse stops the ring and tells the caller whether the callee picked up.
func (h *Handler) CallResponse(ep Endpoint, payload CallResponsePayload) {
	calleeID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventCallError, errorReply{Message: errNotAuthenticated})
		return
	}
	callerID := strings.TrimSpace(payload.To)
	if callerID == "" {
		ep.Emit(EventCallError, errorReply{Message: "to is required"})
		return
	}

	var event models.Event
	switch payload.Type {
	case CallAccepted:
		event = models.CallAcceptedEvent{From: calleeID, ChatID: payload.ChatID, Timestamp: h.Clock.Now()}
	case CallRejected:
		event = models.CallRejectedEvent{From: calleeID, Timestamp: h.Clock.Now()}
	default:
		ep.Emit(EventCallError, errorReply{Message: "type must be accepted or rejected"})
		return
	}

	if !h.calls.stop(callerID, calleeID) {
		log.Printf("⚠️ %s answered a call from %s that is no longer ringing", calleeID, callerID)
	}
	log.Printf("📞 Call from %s %s by %s", callerID, payload.Type, calleeID)
	if !h.notify(callerID, event) {
		ep.Emit(EventCallError, errorReply{Message: "user not connected"})
	}
}

// CallEnd hangs up, cancelling a ring still pending in either direction.
func (h *Handler) CallEnd(ep Endpoint, payload CallEndPayload) {
	userID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventCallError, errorReply{Message: errNotAuthenticated})
		return
	}
	peerID := strings.TrimSpace(payload.To)
	if peerID == "" {
		ep.Emit(EventCallError, errorReply{Message: "to is required"})
		return
	}

	h.calls.stop(userID, peerID)
	h.calls.stop(peerID, userID)
	log.Printf("📞 Call between %s and %s ended", userID, peerID)
	h.notify(peerID, models.CallEndedEvent{From: userID, Timestamp: h.Clock.Now()})
}

// WebRTCSignal relays an offer, answer or ICE candidate to the peer. The sender
// is always the authenticated user, whatever the payload claims.
func (h *Handler) WebRTCSignal(ep Endpoint, payload WebRTCSignalPayload) {
	fromID, ok := h.Registry.UserFor(ep)
	if !ok {
		ep.Emit(EventCallError, errorReply{Message: errNotAuthenticated})
		return
	}

	event := models.WebRTCSignalEvent{
		From:      fromID,
		To:        strings.TrimSpace(payload.To),
		Type:      payload.Type,
		SDP:       payload.SDP,
		Candidate: payload.Candidate,
	}
	if err := event.Validate(); err != nil {
		ep.Emit(EventCallError, errorReply{Message: "to, type and an sdp or candidate are required"})
		return
	}
	log.Printf("📡 WebRTC %s from %s to %s", event.Type, fromID, event.To)
	if !h.notify(event.To, event) {
		ep.Emit(EventCallError, errorReply{Message: "user not connected"})
	}
}
