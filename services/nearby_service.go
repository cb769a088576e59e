package services

import (
	"context"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"radar_server/models"
	"radar_server/utils"
)

// maxProfileLookups bounds concurrent profile reads per nearby query.
const maxProfileLookups = 8

// NearbyUser is one discovered peer, annotated for display and for sending a signal.
type NearbyUser struct {
	User                models.PublicProfile `json:"user"`
	Distance            float64              `json:"distance"` // meters
	Bearing             float64              `json:"bearing"`  // degrees
	CommonInterests     []string             `json:"commonInterests"`
	CommonInterestCount int                  `json:"commonInterestCount"`
	SessionID           string               `json:"sessionId"`
	LastUpdated         time.Time            `json:"lastUpdated"`
}

type NearbyResult struct {
	SessionID string       `json:"sessionId"`
	Geohash   string       `json:"geohash"`
	Users     []NearbyUser `json:"users"`
}

type NearbyService struct {
	Sessions *SessionService
	Profiles *UserProfileService
}

// FindNearby records the caller's location and lists live peers in the same
// geohash bucket, closest first. Neighbouring buckets are not searched.
func (s *NearbyService) FindNearby(ctx context.Context, userID string, lat, lon float64) (*NearbyResult, error) {
	me, err := s.Sessions.UpsertSession(ctx, userID, lat, lon)
	if err != nil {
		return nil, err
	}
	caller, err := s.Profiles.UserOrPlaceholder(ctx, userID)
	if err != nil {
		return nil, err
	}

	log.Printf("🔍 Finding users near %s in bucket %s", userID, me.Geohash)
	sessions, err := s.Sessions.FindActiveByBucket(ctx, me.Geohash, userID, s.Sessions.LivenessCutoff())
	if err != nil {
		return nil, err
	}

	found := make([]*NearbyUser, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProfileLookups)
	for i := range sessions {
		session := sessions[i]
		g.Go(func() error {
			user, err := s.Profiles.GetUser(gctx, session.UserID)
			if models.KindOf(err) == models.KindNotFound {
				log.Printf("⚠️ Skipping session %s without a profile", session.SessionID)
				return nil
			}
			if err != nil {
				return err
			}

			common := utils.CommonInterests(caller.Interests, user.Interests, 0)
			found[i] = &NearbyUser{
				User:                s.Profiles.PublicProfile(gctx, user),
				Distance:            utils.CalculateDistance(lat, lon, session.Lat, session.Lon),
				Bearing:             utils.CalculateBearing(lat, lon, session.Lat, session.Lon),
				CommonInterests:     common,
				CommonInterestCount: len(common),
				SessionID:           session.SessionID,
				LastUpdated:         session.LastUpdated,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("❌ Failed to resolve nearby users: %v", err)
		return nil, err
	}

	users := []NearbyUser{}
	for _, u := range found {
		if u != nil {
			users = append(users, *u)
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Distance != users[j].Distance {
			return users[i].Distance < users[j].Distance
		}
		return users[i].User.ID < users[j].User.ID
	})

	log.Printf("✅ Found %d nearby users for %s", len(users), userID)
	return &NearbyResult{SessionID: me.SessionID, Geohash: me.Geohash, Users: users}, nil
}
