package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"radar_server/controllers"
	"radar_server/middleware"
)

// RegisterRoutes sets up the unauthenticated routes for the application
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")
}

// APIRouter returns the /api subrouter. Every route on it requires a caller identity.
func APIRouter(r *mux.Router, auth *middleware.Auth) *mux.Router {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)
	return api
}

// RegisterSocketRoutes mounts the realtime transport.
func RegisterSocketRoutes(r *mux.Router, server http.Handler) {
	r.PathPrefix("/socket.io/").Handler(server)
}
