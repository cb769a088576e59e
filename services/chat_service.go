package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"radar_server/models"
	"radar_server/store"
)

// ChatService owns chat listing and message delivery.
type ChatService struct {
	Chats    store.ChatRepository
	Messages store.MessageRepository
	Profiles *UserProfileService
	Notifier Notifier
	ChatTTL  time.Duration // rolling window refreshed by every message
	Clock    Clock
}

func NewChatService(st store.Store, profiles *UserProfileService, notifier Notifier, chatTTL time.Duration) *ChatService {
	if chatTTL <= 0 {
		chatTTL = models.DefaultChatTTL
	}
	return &ChatService{
		Chats:    st,
		Messages: st,
		Profiles: profiles,
		Notifier: notifier,
		ChatTTL:  chatTTL,
	}
}

// ListChats returns the user's live chats, most recent activity first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	chats, err := s.Chats.ListActiveChatsForUser(ctx, userID, s.Clock.Now())
	if err != nil {
		log.Printf("❌ Failed to list chats for %s: %v", userID, err)
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for i := range chats {
		chat := &chats[i]
		other, err := s.Profiles.GetPublicProfile(ctx, chat.OtherParticipant(userID))
		if err != nil {
			return nil, err
		}
		preview := chat.LastMessage
		if preview == "" {
			preview = models.EmptyChatPreview
		}
		summaries = append(summaries, models.ChatSummary{
			ID:           chat.ID,
			OtherUser:    other,
			LastActivity: chat.LastActivity,
			LastMessage:  preview,
			ExpiresAt:    chat.ExpiresAt,
			IsActive:     chat.IsActive,
		})
	}
	return summaries, nil
}

// memberChat loads a live chat the user takes part in. Missing, expired and
// other users' chats look the same to the caller.
func (s *ChatService) memberChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, models.InvalidInput("chat id is required")
	}
	chat, err := s.Chats.GetChat(ctx, chatID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("chat not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if !chat.IsLive(s.Clock.Now()) || !chat.HasParticipant(userID) {
		return nil, models.NotFound("chat not found")
	}
	return chat, nil
}

// CheckMember reports NotFound unless userID takes part in the active chat.
func (s *ChatService) CheckMember(ctx context.Context, chatID, userID string) error {
	_, err := s.memberChat(ctx, chatID, userID)
	return err
}

// SendMessage persists a message, refreshes the chat and then broadcasts it.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID, content string) (*models.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.InvalidInput("message content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return nil, models.InvalidInput(fmt.Sprintf("message must be at most %d characters", models.MaxMessageLength))
	}

	chat, err := s.memberChat(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	message := &models.Message{
		ChatID:    chat.ID,
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}
	message.SortKey = store.MessageSortKey(now, message.ID)

	if err := s.Messages.CreateMessage(ctx, message); err != nil {
		log.Printf("❌ Failed to save message: %v", err)
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	if err := s.Chats.TouchChat(ctx, chat, now, content, now.Add(s.ChatTTL)); err != nil {
		log.Printf("❌ Failed to update chat %s: %v", chat.ID, err)
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}

	sender, err := s.Profiles.GetPublicProfile(ctx, senderID)
	if err != nil {
		return nil, err
	}
	view := &models.MessageView{
		ID:        message.ID,
		Sender:    sender,
		Content:   message.Content,
		Chat:      chat.ID,
		CreatedAt: message.CreatedAt,
	}

	reached := notifyChat(s.Notifier, chat.ID, models.NewMessageEvent{
		ID:        view.ID,
		Sender:    view.Sender,
		Content:   view.Content,
		Chat:      view.Chat,
		CreatedAt: view.CreatedAt,
	})
	notifyUser(s.Notifier, chat.OtherParticipant(senderID), models.ChatUpdatedEvent{
		ID:           chat.ID,
		LastActivity: now,
		LastMessage:  content,
	})

	log.Printf("✅ Message %s sent in chat %s (%d endpoints)", message.ID, chat.ID, reached)
	return view, nil
}

// ListMessages returns the chat's messages, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, chatID, userID string) ([]models.MessageView, error) {
	chat, err := s.memberChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.Messages.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	profiles := make(map[string]models.PublicProfile, 2)
	views := make([]models.MessageView, 0, len(messages))
	for _, m := range messages {
		sender, ok := profiles[m.SenderID]
		if !ok {
			sender, err = s.Profiles.GetPublicProfile(ctx, m.SenderID)
			if err != nil {
				return nil, err
			}
			profiles[m.SenderID] = sender
		}
		views = append(views, models.MessageView{
			ID:        m.ID,
			Sender:    sender,
			Content:   m.Content,
			Chat:      m.ChatID,
			CreatedAt: m.CreatedAt,
		})
	}
	return views, nil
}
