package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"radar_server/models"
	"radar_server/store"
)

// PictureSigner turns a stored picture key into a URL clients can load.
type PictureSigner interface {
	GenerateReadURL(ctx context.Context, key string) (string, error)
}

// UserProfileService reads the user records owned by the profile service.
type UserProfileService struct {
	Users    store.UserRepository
	Pictures PictureSigner // optional
}

// GetUser retrieves a user by ID
func (ups *UserProfileService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := ups.Users.GetUser(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// UserOrPlaceholder returns the user, or a bare record carrying only the id when
// the profile service has no entry for it yet.
func (ups *UserProfileService) UserOrPlaceholder(ctx context.Context, userID string) (*models.User, error) {
	user, err := ups.GetUser(ctx, userID)
	if models.KindOf(err) == models.KindNotFound {
		log.Printf("⚠️ No profile for %s, using placeholder", userID)
		return &models.User{ID: userID, Username: userID}, nil
	}
	return user, err
}

// PublicProfile projects the fields other users may see, resolving the picture URL.
func (ups *UserProfileService) PublicProfile(ctx context.Context, user *models.User) models.PublicProfile {
	return models.PublicProfile{
		ID:             user.ID,
		Username:       user.Username,
		ProfilePicture: ups.pictureURL(ctx, user.ProfilePicture),
		Interests:      user.Interests,
	}
}

func (ups *UserProfileService) GetPublicProfile(ctx context.Context, userID string) (models.PublicProfile, error) {
	user, err := ups.UserOrPlaceholder(ctx, userID)
	if err != nil {
		return models.PublicProfile{}, err
	}
	return ups.PublicProfile(ctx, user), nil
}

func (ups *UserProfileService) pictureURL(ctx context.Context, picture string) string {
	if picture == "" || ups.Pictures == nil ||
		strings.HasPrefix(picture, "http://") || strings.HasPrefix(picture, "https://") {
		return picture
	}
	url, err := ups.Pictures.GenerateReadURL(ctx, picture)
	if err != nil {
		log.Printf("❌ Failed to sign picture %s: %v", picture, err)
		return ""
	}
	return url
}
