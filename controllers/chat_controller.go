package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"radar_server/services"
)

// ChatController struct
type ChatController struct {
	ChatService *services.ChatService
}

// NewChatController initializes the chat controller
func NewChatController(service *services.ChatService) *ChatController {
	return &ChatController{ChatService: service}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// GetChats lists the caller's active chats, most recent first.
func (c *ChatController) GetChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	chats, err := c.ChatService.ListChats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", chats)
}

// GetMessages returns a chat's messages, oldest first.
func (c *ChatController) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	messages, err := c.ChatService.ListMessages(r.Context(), mux.Vars(r)["chatId"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", messages)
}

// SendMessage posts a message and broadcasts it to the chat room.
func (c *ChatController) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	message, err := c.ChatService.SendMessage(r.Context(), mux.Vars(r)["chatId"], userID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "message sent", message)
}
