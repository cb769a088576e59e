package routes

import (
	"github.com/gorilla/mux"

	"radar_server/controllers"
	"radar_server/services"
)

// RegisterChatRoutes sets up routes for chat-related operations under /api/chats
func RegisterChatRoutes(api *mux.Router, chatService *services.ChatService) {
	controller := controllers.NewChatController(chatService)

	chatRouter := api.PathPrefix("/chats").Subrouter()
	chatRouter.HandleFunc("", controller.GetChats).Methods("GET")
	chatRouter.HandleFunc("/{chatId}/messages", controller.GetMessages).Methods("GET")
	chatRouter.HandleFunc("/{chatId}/messages", controller.SendMessage).Methods("POST")
}
