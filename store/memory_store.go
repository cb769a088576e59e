package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"radar_server/models"
)

// MemoryStore is an in-process Store. It is not persistent and is meant for
// local development and tests. All guards are checked under a single lock.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session // by user id
	signals  map[string]models.Signal
	chats    map[string]models.Chat
	messages map[string][]models.Message // by chat id, insertion order
	users    map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		signals:  make(map[string]models.Signal),
		chats:    make(map[string]models.Chat),
		messages: make(map[string][]models.Message),
		users:    make(map[string]models.User),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) UpsertSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, existing := range s.sessions {
		if existing.SessionID == session.SessionID && userID != session.UserID {
			return models.ErrDuplicateKey
		}
	}
	if existing, ok := s.sessions[session.UserID]; ok && !existing.CreatedAt.IsZero() {
		session.CreatedAt = existing.CreatedAt
	}
	s.sessions[session.UserID] = *session
	return nil
}

func (s *MemoryStore) DeactivateSession(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return models.ErrNotFound
	}
	session.IsActive = false
	s.sessions[userID] = session
	return nil
}

func (s *MemoryStore) GetSessionByUser(_ context.Context, userID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &session, nil
}

func (s *MemoryStore) GetSessionByToken(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.SessionID == sessionID {
			found := session
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) ListLiveSessionsByGeohash(_ context.Context, geohash, excludeUserID string, since time.Time) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := []models.Session{}
	for userID, session := range s.sessions {
		if userID == excludeUserID || session.Geohash != geohash || !session.IsLive(since) {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UserID < sessions[j].UserID })
	return sessions, nil
}

func (s *MemoryStore) FindBlockingSignal(_ context.Context, fromUserID, toUserID string, now time.Time) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, signal := range s.signals {
		if signal.FromUserID == fromUserID && signal.ToUserID == toUserID && signal.IsBlocking(now) {
			found := signal
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) CreateSignal(_ context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := models.PairKey(signal.FromUserID, signal.ToUserID)
	for _, existing := range s.signals {
		if existing.ChatID == signal.ChatID {
			return models.ErrDuplicateKey
		}
		if models.PairKey(existing.FromUserID, existing.ToUserID) == pair && existing.IsBlocking(signal.CreatedAt) {
			return models.ErrPendingSignalExists
		}
	}
	if _, ok := s.signals[signal.ID]; ok {
		return models.ErrDuplicateKey
	}
	s.signals[signal.ID] = copySignal(*signal)
	return nil
}

func (s *MemoryStore) GetSignal(_ context.Context, signalID string) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signal, ok := s.signals[signalID]
	if !ok {
		return nil, models.ErrNotFound
	}
	found := copySignal(signal)
	return &found, nil
}

func (s *MemoryStore) ResolveSignal(_ context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.signals[signal.ID]
	if !ok {
		return models.ErrNotFound
	}
	if existing.Status != models.SignalStatusPending {
		return models.ErrSignalNotPending
	}
	s.signals[signal.ID] = copySignal(*signal)
	return nil
}

func (s *MemoryStore) AcceptSignal(_ context.Context, signal *models.Signal, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.signals[signal.ID]
	if !ok {
		return models.ErrNotFound
	}
	if existing.Status != models.SignalStatusPending {
		return models.ErrSignalNotPending
	}
	pair := models.PairKey(chat.Participant1, chat.Participant2)
	for _, c := range s.chats {
		if c.IsLive(chat.CreatedAt) && models.PairKey(c.Participant1, c.Participant2) == pair {
			return models.ErrChatExists
		}
	}

	s.chats[chat.ID] = *chat
	s.signals[signal.ID] = copySignal(*signal)
	return nil
}

func (s *MemoryStore) ListSignalsForRecipient(_ context.Context, userID string) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signals := []models.Signal{}
	for _, signal := range s.signals {
		if signal.ToUserID == userID {
			signals = append(signals, copySignal(signal))
		}
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].CreatedAt.After(signals[j].CreatedAt) })
	return signals, nil
}

func (s *MemoryStore) DeleteSignal(_ context.Context, signalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[signalID]; !ok {
		return models.ErrNotFound
	}
	delete(s.signals, signalID)
	return nil
}

func (s *MemoryStore) FindActiveChatBetween(_ context.Context, userA, userB string, now time.Time) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair := models.PairKey(userA, userB)
	for _, chat := range s.chats {
		if chat.IsLive(now) && models.PairKey(chat.Participant1, chat.Participant2) == pair {
			found := chat
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) GetChat(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &chat, nil
}

func (s *MemoryStore) ListActiveChatsForUser(_ context.Context, userID string, now time.Time) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := []models.Chat{}
	for _, chat := range s.chats {
		if chat.IsLive(now) && chat.HasParticipant(userID) {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].LastActivity.After(chats[j].LastActivity) })
	return chats, nil
}

func (s *MemoryStore) TouchChat(_ context.Context, touched *models.Chat, lastActivity time.Time, lastMessage string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[touched.ID]
	if !ok {
		return models.ErrNotFound
	}
	if lastActivity.Before(chat.LastActivity) {
		return nil
	}
	chat.LastActivity = lastActivity
	chat.LastMessage = lastMessage
	chat.ExpiresAt = expiresAt
	s.chats[touched.ID] = chat
	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[message.ChatID] = append(s.messages[message.ChatID], *message)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]models.Message, len(s.messages[chatID]))
	copy(messages, s.messages[chatID])
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })
	return messages, nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) PutUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.ID] = *user
	return nil
}

func copySignal(signal models.Signal) models.Signal {
	signal.CommonInterests = append([]string{}, signal.CommonInterests...)
	if signal.RespondedAt != nil {
		respondedAt := *signal.RespondedAt
		signal.RespondedAt = &respondedAt
	}
	return signal
}
