package routes

import (
	"github.com/gorilla/mux"

	"radar_server/controllers"
	"radar_server/services"
)

// RegisterSignalRoutes sets up routes for signal operations under /api/signals
func RegisterSignalRoutes(api *mux.Router, signals *services.SignalService) {
	controller := controllers.NewSignalController(signals)

	signalRouter := api.PathPrefix("/signals").Subrouter()
	signalRouter.HandleFunc("", controller.SendSignal).Methods("POST")
	signalRouter.HandleFunc("/respond", controller.RespondToSignal).Methods("POST")
	signalRouter.HandleFunc("/received", controller.GetReceivedSignals).Methods("GET")
	signalRouter.HandleFunc("/{signalId}", controller.DeleteSignal).Methods("DELETE")
}
