package routes

import (
	"github.com/gorilla/mux"

	"radar_server/controllers"
	"radar_server/services"
)

// RegisterUserProfileRoutes sets up the public profile lookup under /api/users
func RegisterUserProfileRoutes(api *mux.Router, userProfileService *services.UserProfileService) {
	controller := controllers.NewUserProfileController(userProfileService)

	api.HandleFunc("/users/{userId}", controller.GetUserProfile).Methods("GET")
}
