package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"radar_server/services"
)

// UserProfileController serves read-only public profiles.
type UserProfileController struct {
	UserProfileService *services.UserProfileService
}

// NewUserProfileController creates a new instance of UserProfileController
func NewUserProfileController(userProfileService *services.UserProfileService) *UserProfileController {
	return &UserProfileController{UserProfileService: userProfileService}
}

// GetUserProfile returns the public view of a user, with a signed picture URL.
func (c *UserProfileController) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}
	user, err := c.UserProfileService.GetUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", c.UserProfileService.PublicProfile(r.Context(), user))
}
