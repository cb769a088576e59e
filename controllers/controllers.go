package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"radar_server/middleware"
	"radar_server/models"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Welcome to the Radar API."})
}

// WriteJSONResponse writes payload as JSON with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSONResponse(w, status, Envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	WriteJSONResponse(w, status, Envelope{Success: false, Message: message})
}

// writeError renders a service error. Internal failures never leak their cause.
func writeError(w http.ResponseWriter, err error) {
	writeFailure(w, statusFor(models.KindOf(err)), models.PublicMessage(err))
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindConflict:
		return http.StatusConflict
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Printf("❌ Invalid request body on %s: %v", r.URL.Path, err)
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// callerID returns the authenticated user or answers 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "authentication required")
	}
	return userID, ok
}
