package controllers

import (
	"log"
	"net/http"
	"strconv"

	"radar_server/models"
	"radar_server/services"
)

// LocationController serves location reports, discovery and logout.
type LocationController struct {
	Sessions *services.SessionService
	Nearby   *services.NearbyService
}

func NewLocationController(sessions *services.SessionService, nearby *services.NearbyService) *LocationController {
	return &LocationController{Sessions: sessions, Nearby: nearby}
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// UpdateLocation records the caller's position.
func (c *LocationController) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req locationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeFailure(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	session, err := c.Sessions.UpsertSession(r.Context(), userID, *req.Latitude, *req.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "location updated", session)
}

// GetNearby records the caller's position from the query and lists peers in the same bucket.
func (c *LocationController) GetNearby(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		writeFailure(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	log.Printf("🔍 Nearby lookup for %s", userID)
	result, err := c.Nearby.FindNearby(r.Context(), userID, lat, lon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", result)
}

// Logout deactivates the caller's session.
func (c *LocationController) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	err := c.Sessions.Deactivate(r.Context(), userID)
	if err != nil && models.KindOf(err) != models.KindNotFound {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "logged out", nil)
}
