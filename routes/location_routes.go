package routes

import (
	"github.com/gorilla/mux"

	"radar_server/controllers"
	"radar_server/services"
)

// RegisterLocationRoutes sets up location, discovery and logout routes on the /api subrouter
func RegisterLocationRoutes(api *mux.Router, sessions *services.SessionService, nearby *services.NearbyService) {
	controller := controllers.NewLocationController(sessions, nearby)

	api.HandleFunc("/location", controller.UpdateLocation).Methods("POST")
	api.HandleFunc("/nearby", controller.GetNearby).Methods("GET")
	api.HandleFunc("/logout", controller.Logout).Methods("POST")
}
