package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"radar_server/models"
	"radar_server/store"
	"radar_server/utils"
)

// Responses a recipient may give to a signal
const (
	DecisionAccepted = string(models.SignalStatusAccepted)
	DecisionIgnored  = string(models.SignalStatusIgnored)
)

// Reasons reported by CanSend
const (
	ReasonPendingOutgoing = "you already have a pending signal with this person"
	ReasonPendingIncoming = "this person already sent you a pending signal"
)

// SignalResult is a persisted signal plus the payload for its recipient.
type SignalResult struct {
	Signal    *models.Signal
	Event     models.NewSignalEvent
	Delivered bool
}

// RespondResult carries the resolved signal. ChatID is empty when the signal was ignored.
type RespondResult struct {
	Signal    *models.Signal `json:"signal"`
	ChatID    string         `json:"chatId,omitempty"`
	Chat      *models.Chat   `json:"chat,omitempty"`
	Delivered bool           `json:"delivered"`
}

// SignalService runs the signal lifecycle: pending, then accepted or ignored,
// or expired once its expiry passes without a response.
type SignalService struct {
	Signals  store.SignalRepository
	Chats    store.ChatRepository
	Sessions *SessionService
	Profiles *UserProfileService
	Notifier Notifier

	SignalTTL time.Duration
	ChatTTL   time.Duration
	Clock     Clock

	pairs *utils.PairLock
}

func NewSignalService(st store.Store, sessions *SessionService, profiles *UserProfileService, notifier Notifier, signalTTL, chatTTL time.Duration) *SignalService {
	if signalTTL <= 0 {
		signalTTL = models.DefaultSignalTTL
	}
	if chatTTL <= 0 {
		chatTTL = models.DefaultChatTTL
	}
	return &SignalService{
		Signals:   st,
		Chats:     st,
		Sessions:  sessions,
		Profiles:  profiles,
		Notifier:  notifier,
		SignalTTL: signalTTL,
		ChatTTL:   chatTTL,
		pairs:     utils.NewPairLock(),
	}
}

// lockPair serializes check-then-act for one pair in this process. The store's
// uniqueness guards still decide the outcome across processes.
func (s *SignalService) lockPair(a, b string) func() {
	if s.pairs == nil {
		return func() {}
	}
	return s.pairs.Lock(a, b)
}

// CanSend reports whether from may signal to. A pending signal in either
// direction blocks; expired ones do not.
func (s *SignalService) CanSend(ctx context.Context, fromUserID, toUserID string) (bool, string, error) {
	now := s.Clock.Now()

	_, err := s.Signals.FindBlockingSignal(ctx, fromUserID, toUserID, now)
	if err == nil {
		return false, ReasonPendingOutgoing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, "", fmt.Errorf("failed to check pending signals: %w", err)
	}

	_, err = s.Signals.FindBlockingSignal(ctx, toUserID, fromUserID, now)
	if err == nil {
		return false, ReasonPendingIncoming, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, "", fmt.Errorf("failed to check pending signals: %w", err)
	}
	return true, "", nil
}

// newChatToken returns the provisional chat id stored on a pending signal.
func newChatToken(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return models.ProvisionalChatIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random
}

// Send creates a pending signal from fromUserID to the owner of toSessionToken.
// It does not notify anyone; see Deliver.
func (s *SignalService) Send(ctx context.Context, fromUserID, toSessionToken, message string) (*SignalResult, error) {
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > models.MaxSignalMessageLength {
		return nil, models.InvalidInput(fmt.Sprintf("message must be at most %d characters", models.MaxSignalMessageLength))
	}

	me, err := s.Sessions.FindActiveByUser(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	target, err := s.Sessions.FindBySessionToken(ctx, toSessionToken)
	if err != nil {
		return nil, err
	}
	if target.UserID == fromUserID {
		return nil, models.InvalidInput("you cannot send a signal to yourself")
	}

	unlock := s.lockPair(fromUserID, target.UserID)
	defer unlock()

	allowed, reason, err := s.CanSend(ctx, fromUserID, target.UserID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		log.Printf("⚠️ Signal %s -> %s rejected: %s", fromUserID, target.UserID, reason)
		return nil, models.Conflict(reason, models.ErrPendingSignalExists)
	}

	sender, err := s.Profiles.UserOrPlaceholder(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.Profiles.UserOrPlaceholder(ctx, target.UserID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	signal := &models.Signal{
		ID:                uuid.NewString(),
		FromUserID:        fromUserID,
		ToUserID:          target.UserID,
		FromUserSessionID: me.SessionID,
		ToUserSessionID:   target.SessionID,
		Message:           message,
		CommonInterests:   utils.CommonInterests(sender.Interests, recipient.Interests, models.MaxCommonInterests),
		Status:            models.SignalStatusPending,
		ChatID:            newChatToken(now),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.SignalTTL),
	}

	if err := s.Signals.CreateSignal(ctx, signal); err != nil {
		if errors.Is(err, models.ErrPendingSignalExists) {
			return nil, models.Conflict(ReasonPendingOutgoing, err)
		}
		log.Printf("❌ Failed to save signal: %v", err)
		return nil, fmt.Errorf("failed to save signal: %w", err)
	}

	log.Printf("✅ Signal sent: %s -> %s", fromUserID, target.UserID)
	return &SignalResult{
		Signal: signal,
		Event: models.NewSignalEvent{
			ID:              signal.ID,
			FromUser:        s.Profiles.PublicProfile(ctx, sender),
			ToUser:          signal.ToUserID,
			ChatToken:       signal.ChatID,
			Message:         signal.Message,
			CommonInterests: signal.CommonInterests,
			Status:          signal.Status,
			CreatedAt:       signal.CreatedAt,
			ExpiresAt:       signal.ExpiresAt,
		},
	}, nil
}

// SendToUser resolves the target's active session and sends to it.
func (s *SignalService) SendToUser(ctx context.Context, fromUserID, targetUserID, message string) (*SignalResult, error) {
	if strings.TrimSpace(targetUserID) == "" {
		return nil, models.InvalidInput("target user id is required")
	}
	target, err := s.Sessions.FindActiveByUser(ctx, targetUserID)
	if models.KindOf(err) == models.KindNotFound {
		return nil, models.NotFound("target not active")
	}
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, fromUserID, target.SessionID, message)
}

// Deliver pushes new_signal to the recipient and records whether it arrived.
func (s *SignalService) Deliver(result *SignalResult) bool {
	result.Delivered = notifyUser(s.Notifier, result.Signal.ToUserID, result.Event)
	if result.Delivered {
		log.Printf("📩 new_signal delivered to %s", result.Signal.ToUserID)
	}
	return result.Delivered
}

// Respond resolves a pending signal. Only its recipient may respond.
func (s *SignalService) Respond(ctx context.Context, signalID, userID, decision string) (*RespondResult, error) {
	if decision != DecisionAccepted && decision != DecisionIgnored {
		return nil, models.InvalidInput("decision must be accepted or ignored")
	}

	signal, err := s.getSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if signal.ToUserID != userID {
		return nil, models.Forbidden("only the recipient can respond to this signal")
	}

	unlock := s.lockPair(signal.FromUserID, signal.ToUserID)
	defer unlock()

	now := s.Clock.Now()
	switch signal.EffectiveStatus(now) {
	case models.SignalStatusPending:
	case models.SignalStatusExpired:
		return nil, models.Conflict("signal has expired", models.ErrSignalNotPending)
	default:
		return nil, models.Conflict("already resolved", models.ErrSignalNotPending)
	}

	responder, err := s.Profiles.GetPublicProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if decision == DecisionIgnored {
		return s.ignore(ctx, signal, responder, now)
	}
	return s.accept(ctx, signal, responder, now)
}

func (s *SignalService) ignore(ctx context.Context, signal *models.Signal, responder models.PublicProfile, now time.Time) (*RespondResult, error) {
	signal.Status = models.SignalStatusIgnored
	signal.RespondedAt = &now

	if err := s.Signals.ResolveSignal(ctx, signal); err != nil {
		if errors.Is(err, models.ErrSignalNotPending) {
			return nil, models.Conflict("already resolved", err)
		}
		return nil, fmt.Errorf("failed to update signal: %w", err)
	}

	delivered := notifyUser(s.Notifier, signal.FromUserID, models.SignalDeclinedEvent{
		DeclinedBy: responder,
		ChatID:     signal.ChatID,
	})
	log.Printf("🙈 Signal %s ignored by %s", signal.ID, signal.ToUserID)
	return &RespondResult{Signal: signal, Delivered: delivered}, nil
}

func (s *SignalService) accept(ctx context.Context, signal *models.Signal, responder models.PublicProfile, now time.Time) (*RespondResult, error) {
	_, err := s.Chats.FindActiveChatBetween(ctx, signal.FromUserID, signal.ToUserID, now)
	if err == nil {
		return nil, models.Conflict("chat already exists", models.ErrChatExists)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing chats: %w", err)
	}

	chat := &models.Chat{
		ID:                  uuid.NewString(),
		Participant1:        signal.FromUserID,
		Participant2:        signal.ToUserID,
		InitiatedFromSignal: signal.ID,
		IsActive:            true,
		LastActivity:        now,
		LastMessage:         models.DefaultChatLastMessage,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.ChatTTL),
	}
	signal.Status = models.SignalStatusAccepted
	signal.ChatID = chat.ID
	signal.RespondedAt = &now

	if err := s.Signals.AcceptSignal(ctx, signal, chat); err != nil {
		switch {
		case errors.Is(err, models.ErrChatExists):
			return nil, models.Conflict("chat already exists", err)
		case errors.Is(err, models.ErrSignalNotPending):
			return nil, models.Conflict("already resolved", err)
		}
		log.Printf("❌ Failed to accept signal %s: %v", signal.ID, err)
		return nil, fmt.Errorf("failed to accept signal: %w", err)
	}

	delivered := notifyUser(s.Notifier, signal.FromUserID, models.SignalAcceptedEvent{
		AcceptedBy: responder,
		ChatID:     chat.ID,
		AcceptedAt: now,
	})
	log.Printf("🎉 Signal %s accepted, chat %s created", signal.ID, chat.ID)
	return &RespondResult{Signal: signal, ChatID: chat.ID, Chat: chat, Delivered: delivered}, nil
}

// ListReceived returns signals addressed to userID, newest first, with expiry applied.
func (s *SignalService) ListReceived(ctx context.Context, userID string) ([]models.Signal, error) {
	signals, err := s.Signals.ListSignalsForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	now := s.Clock.Now()
	for i := range signals {
		signals[i].Status = signals[i].EffectiveStatus(now)
	}
	return signals, nil
}

// Delete removes a signal. Only its sender or recipient may do so.
func (s *SignalService) Delete(ctx context.Context, signalID, userID string) error {
	signal, err := s.getSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if !signal.Involves(userID) {
		return models.Forbidden("you cannot delete this signal")
	}
	if err := s.Signals.DeleteSignal(ctx, signalID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NotFound("signal not found")
		}
		return fmt.Errorf("failed to delete signal: %w", err)
	}
	log.Printf("🗑️ Signal %s deleted by %s", signalID, userID)
	return nil
}

func (s *SignalService) getSignal(ctx context.Context, signalID string) (*models.Signal, error) {
	if strings.TrimSpace(signalID) == "" {
		return nil, models.InvalidInput("signal id is required")
	}
	signal, err := s.Signals.GetSignal(ctx, signalID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("signal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signal: %w", err)
	}
	return signal, nil
}
