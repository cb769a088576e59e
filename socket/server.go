package socket

import (
	"log"

	socketio "github.com/googollee/go-socket.io"
)

const namespace = "/"

// NewSocketServer initializes a Socket.IO server that feeds every inbound event to h.
func NewSocketServer(h *Handler) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect(namespace, func(s socketio.Conn) error {
		h.Connect(s)
		return nil
	})

	server.OnEvent(namespace, "authenticate", func(s socketio.Conn, payload AuthPayload) {
		h.Authenticate(s, payload)
	})
	server.OnEvent(namespace, "user_authenticated", func(s socketio.Conn, payload AuthPayload) {
		h.Authenticate(s, payload)
	})

	server.OnEvent(namespace, "send_message", func(s socketio.Conn, payload SendMessagePayload) {
		h.SendMessage(s, payload)
	})

	server.OnEvent(namespace, "send_signal", func(s socketio.Conn, payload SendSignalPayload) {
		h.SendSignal(s, payload)
	})

	server.OnEvent(namespace, "join_chat", func(s socketio.Conn, chatID string) {
		h.JoinChat(s, chatID)
	})
	server.OnEvent(namespace, "join_chats", func(s socketio.Conn, chatIDs []string) {
		h.JoinChats(s, chatIDs)
	})
	server.OnEvent(namespace, "leave_chat", func(s socketio.Conn, chatID string) {
		h.LeaveChat(s, chatID)
	})

	server.OnEvent(namespace, "update_position", func(s socketio.Conn, payload UpdatePositionPayload) {
		h.UpdatePosition(s, payload)
	})

	server.OnEvent(namespace, "call-request", func(s socketio.Conn, payload CallRequestPayload) {
		h.CallRequest(s, payload)
	})
	server.OnEvent(namespace, "call-response", func(s socketio.Conn, payload CallResponsePayload) {
		h.CallResponse(s, payload)
	})
	server.OnEvent(namespace, "call-end", func(s socketio.Conn, payload CallEndPayload) {
		h.CallEnd(s, payload)
	})
	server.OnEvent(namespace, "webrtc-signal", func(s socketio.Conn, payload WebRTCSignalPayload) {
		h.WebRTCSignal(s, payload)
	})

	server.OnEvent(namespace, "ping", func(s socketio.Conn) {
		h.Ping(s)
	})

	server.OnError(namespace, func(s socketio.Conn, err error) {
		if s == nil {
			log.Printf("❌ Socket error: %v", err)
			return
		}
		log.Printf("❌ Socket error on %s: %v", s.ID(), err)
	})

	server.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		h.Disconnect(s, reason)
	})

	return server
}
