package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"radar_server/models"
	"radar_server/store"
	"radar_server/utils"
)

// Clock returns the current time. A nil Clock reads the wall clock.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// SessionService tracks each user's last known location and liveness.
type SessionService struct {
	Sessions  store.SessionRepository
	Liveness  time.Duration // sessions older than this are hidden from discovery
	RecordTTL time.Duration // store-side expiry of the record itself
	Clock     Clock
}

func NewSessionService(sessions store.SessionRepository, liveness, recordTTL time.Duration) *SessionService {
	if liveness <= 0 {
		liveness = models.DefaultSessionLiveness
	}
	if recordTTL <= 0 {
		recordTTL = models.DefaultSessionRecordTTL
	}
	return &SessionService{Sessions: sessions, Liveness: liveness, RecordTTL: recordTTL}
}

// LivenessCutoff is the oldest lastUpdated still considered live.
func (s *SessionService) LivenessCutoff() time.Time {
	return s.Clock.Now().Add(-s.Liveness)
}

// UpsertSession records a location report for userID. Repeated calls update the
// same record in place.
func (s *SessionService) UpsertSession(ctx context.Context, userID string, lat, lon float64) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.InvalidInput("user id is required")
	}
	if !utils.ValidCoordinates(lat, lon) {
		return nil, models.InvalidInput("latitude must be within [-90, 90] and longitude within [-180, 180]")
	}

	now := s.Clock.Now()
	session := &models.Session{
		UserID:      userID,
		SessionID:   models.SessionTokenFor(userID),
		Geohash:     utils.EncodeGeohash(lat, lon),
		Lat:         lat,
		Lon:         lon,
		IsActive:    true,
		LastUpdated: now,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.RecordTTL).Unix(),
	}

	if err := s.Sessions.UpsertSession(ctx, session); err != nil {
		log.Printf("❌ Failed to upsert session for %s: %v", userID, err)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	log.Printf("📍 Session updated for %s (geohash: %s)", userID, session.Geohash)
	return session, nil
}

// Deactivate marks the user's session inactive. The record is kept.
func (s *SessionService) Deactivate(ctx context.Context, userID string) error {
	err := s.Sessions.DeactivateSession(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.NotFound("no active session")
	}
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	log.Printf("👋 Session deactivated for %s", userID)
	return nil
}

// FindActiveByBucket returns other users' live sessions in the same geohash bucket.
func (s *SessionService) FindActiveByBucket(ctx context.Context, geohash, excludingUserID string, since time.Time) ([]models.Session, error) {
	sessions, err := s.Sessions.ListLiveSessionsByGeohash(ctx, geohash, excludingUserID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return sessions, nil
}

// FindActiveByUser resolves the caller's own active session.
func (s *SessionService) FindActiveByUser(ctx context.Context, userID string) (*models.Session, error) {
	session, err := s.Sessions.GetSessionByUser(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("no active session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.IsActive {
		return nil, models.NotFound("no active session")
	}
	return session, nil
}

// FindBySessionToken resolves a signal target from the token handed out by discovery.
func (s *SessionService) FindBySessionToken(ctx context.Context, token string) (*models.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, models.InvalidInput("session token is required")
	}
	session, err := s.Sessions.GetSessionByToken(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("target not active")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.IsActive {
		return nil, models.NotFound("target not active")
	}
	return session, nil
}
