package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"radar_server/models"
)

// uniqueKey is a guard item in models.UniqueKeysTable. Conditional writes on it
// enforce pair uniqueness, which DynamoDB cannot express on the data tables.
type uniqueKey struct {
	Key       string `dynamodbav:"uniqueKey"` // ✅ Partition Key
	OwnerID   string `dynamodbav:"ownerId"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"` // DynamoDB TTL (epoch seconds)
}

func signalGuardKey(a, b string) string { return "SIGNAL#" + models.PairKey(a, b) }
func chatGuardKey(a, b string) string   { return "CHAT#" + models.PairKey(a, b) }
func chatTokenKey(token string) string  { return "CHATTOKEN#" + token }

// DynamoStore keeps every record in DynamoDB.
type DynamoStore struct {
	Dynamo *DynamoService
}

func NewDynamoStore(client DynamoAPI) *DynamoStore {
	return &DynamoStore{Dynamo: &DynamoService{Client: client}}
}

var _ Store = (*DynamoStore)(nil)

func stringValue(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// timeValue encodes t the same way attributevalue marshals time.Time.
func timeValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.Format(time.RFC3339Nano)}
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func boolValue(b bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: b}
}

// epochCeil rounds t up to whole seconds so a guard never lapses before its signal.
func epochCeil(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}

// ---------------------------------------------------------------- sessions

func (s *DynamoStore) UpsertSession(ctx context.Context, session *models.Session) error {
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = session.LastUpdated
	}

	attrs, err := s.Dynamo.UpdateItem(ctx, models.SessionsTable,
		stringKey("userId", session.UserID),
		"SET #sid = :sid, #gh = :gh, #lat = :lat, #lon = :lon, #active = :active, #updated = :updated, #ttl = :ttl, #created = if_not_exists(#created, :created)",
		"",
		map[string]types.AttributeValue{
			":sid":     stringValue(session.SessionID),
			":gh":      stringValue(session.Geohash),
			":lat":     &types.AttributeValueMemberN{Value: strconv.FormatFloat(session.Lat, 'f', -1, 64)},
			":lon":     &types.AttributeValueMemberN{Value: strconv.FormatFloat(session.Lon, 'f', -1, 64)},
			":active":  boolValue(session.IsActive),
			":updated": timeValue(session.LastUpdated),
			":ttl":     numberValue(session.ExpiresAt),
			":created": timeValue(createdAt),
		},
		map[string]string{
			"#sid":     "sessionId",
			"#gh":      "lastKnownGeohash",
			"#lat":     "lat",
			"#lon":     "lon",
			"#active":  "isActive",
			"#updated": "lastUpdated",
			"#ttl":     "expiresAt",
			"#created": "createdAt",
		},
	)
	if err != nil {
		return err
	}

	var stored models.Session
	if err := attributevalue.UnmarshalMap(attrs, &stored); err == nil && !stored.CreatedAt.IsZero() {
		session.CreatedAt = stored.CreatedAt
	}
	return nil
}

func (s *DynamoStore) DeactivateSession(ctx context.Context, userID string) error {
	_, err := s.Dynamo.UpdateItem(ctx, models.SessionsTable,
		stringKey("userId", userID),
		"SET isActive = :inactive",
		"attribute_exists(userId)",
		map[string]types.AttributeValue{":inactive": boolValue(false)},
		nil,
	)
	return err
}

func (s *DynamoStore) GetSessionByUser(ctx context.Context, userID string) (*models.Session, error) {
	var session models.Session
	if err := s.Dynamo.GetItem(ctx, models.SessionsTable, stringKey("userId", userID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *DynamoStore) GetSessionByToken(ctx context.Context, sessionID string) (*models.Session, error) {
	var sessions []models.Session
	err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(models.SessionsTable),
		IndexName:                 aws.String(models.SessionIDIndex),
		KeyConditionExpression:    aws.String("sessionId = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":sid": stringValue(sessionID)},
	}, &sessions)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, models.ErrNotFound
	}
	return &sessions[0], nil
}

// ListLiveSessionsByGeohash queries the geohash GSI; the liveness window is checked in Go.
func (s *DynamoStore) ListLiveSessionsByGeohash(ctx context.Context, geohash, excludeUserID string, since time.Time) ([]models.Session, error) {
	var candidates []models.Session
	err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(models.SessionsTable),
		IndexName:              aws.String(models.GeohashIndex),
		KeyConditionExpression: aws.String("lastKnownGeohash = :gh"),
		FilterExpression:       aws.String("isActive = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gh":     stringValue(geohash),
			":active": boolValue(true),
		},
	}, &candidates)
	if err != nil {
		return nil, err
	}

	sessions := []models.Session{}
	for _, session := range candidates {
		if session.UserID == excludeUserID || !session.IsLive(since) {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UserID < sessions[j].UserID })
	return sessions, nil
}

// ---------------------------------------------------------------- signals

func (s *DynamoStore) FindBlockingSignal(ctx context.Context, fromUserID, toUserID string, now time.Time) (*models.Signal, error) {
	var guard uniqueKey
	if err := s.Dynamo.GetItem(ctx, models.UniqueKeysTable, stringKey("uniqueKey", signalGuardKey(fromUserID, toUserID)), &guard); err != nil {
		return nil, err
	}

	signal, err := s.GetSignal(ctx, guard.OwnerID)
	if err != nil {
		return nil, err
	}
	if signal.FromUserID != fromUserID || signal.ToUserID != toUserID || !signal.IsBlocking(now) {
		return nil, models.ErrNotFound
	}
	return signal, nil
}

// CreateSignal writes the pair guard, the signal and its chat-token guard in one
// transaction. An expired guard may be overwritten.
func (s *DynamoStore) CreateSignal(ctx context.Context, signal *models.Signal) error {
	guard, err := attributevalue.MarshalMap(uniqueKey{
		Key:       signalGuardKey(signal.FromUserID, signal.ToUserID),
		OwnerID:   signal.ID,
		ExpiresAt: epochCeil(signal.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal signal guard: %w", err)
	}
	item, err := attributevalue.MarshalMap(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	token, err := attributevalue.MarshalMap(uniqueKey{Key: chatTokenKey(signal.ChatID), OwnerID: signal.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal chat token guard: %w", err)
	}

	err = s.Dynamo.TransactWriteItems(ctx, []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:                 aws.String(models.UniqueKeysTable),
			Item:                      guard,
			ConditionExpression:       aws.String("attribute_not_exists(uniqueKey) OR expiresAt <= :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": numberValue(signal.CreatedAt.Unix())},
		}},
		{Put: &types.Put{
			TableName:           aws.String(models.SignalsTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}},
		{Put: &types.Put{
			TableName:           aws.String(models.UniqueKeysTable),
			Item:                token,
			ConditionExpression: aws.String("attribute_not_exists(uniqueKey)"),
		}},
	})
	if idx, ok := failedConditionIndex(err); ok {
		if idx == 0 {
			return models.ErrPendingSignalExists
		}
		return models.ErrDuplicateKey
	}
	if err != nil {
		return err
	}

	log.Printf("✅ Signal %s stored (%s -> %s)", signal.ID, signal.FromUserID, signal.ToUserID)
	return nil
}

func (s *DynamoStore) GetSignal(ctx context.Context, signalID string) (*models.Signal, error) {
	var signal models.Signal
	if err := s.Dynamo.GetItem(ctx, models.SignalsTable, stringKey("id", signalID), &signal); err != nil {
		return nil, err
	}
	if signal.CommonInterests == nil {
		signal.CommonInterests = []string{}
	}
	return &signal, nil
}

// resolveUpdate is the transaction item that moves a pending signal to a terminal status.
func resolveUpdate(signal *models.Signal) *types.Update {
	values := map[string]types.AttributeValue{
		":status":  stringValue(string(signal.Status)),
		":pending": stringValue(string(models.SignalStatusPending)),
		":chatId":  stringValue(signal.ChatID),
	}
	expr := "SET #status = :status, chatId = :chatId"
	if signal.RespondedAt != nil {
		expr += ", respondedAt = :respondedAt"
		values[":respondedAt"] = timeValue(*signal.RespondedAt)
	}
	return &types.Update{
		TableName:                 aws.String(models.SignalsTable),
		Key:                       stringKey("id", signal.ID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("#status = :pending"),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	}
}

// releaseGuard deletes the pair guard unless a newer signal owns it.
func releaseGuard(signal *models.Signal) *types.Delete {
	return &types.Delete{
		TableName:                 aws.String(models.UniqueKeysTable),
		Key:                       stringKey("uniqueKey", signalGuardKey(signal.FromUserID, signal.ToUserID)),
		ConditionExpression:       aws.String("attribute_not_exists(uniqueKey) OR ownerId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":id": stringValue(signal.ID)},
	}
}

func (s *DynamoStore) ResolveSignal(ctx context.Context, signal *models.Signal) error {
	err := s.Dynamo.TransactWriteItems(ctx, []types.TransactWriteItem{
		{Update: resolveUpdate(signal)},
		{Delete: releaseGuard(signal)},
	})
	if _, ok := failedConditionIndex(err); ok {
		return models.ErrSignalNotPending
	}
	return err
}

// activityNanosAttr mirrors lastActivity as a number. The RFC3339Nano strings
// drop trailing zeros and do not sort, so touch ordering is checked on this.
const activityNanosAttr = "lastActivityNanos"

// AcceptSignal resolves the signal and creates the chat with its pair guard
// atomically. The guard carries the chat's expiry, so a lapsed chat's guard may
// be overwritten.
func (s *DynamoStore) AcceptSignal(ctx context.Context, signal *models.Signal, chat *models.Chat) error {
	item, err := attributevalue.MarshalMap(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	item[activityNanosAttr] = numberValue(chat.LastActivity.UnixNano())
	guard, err := attributevalue.MarshalMap(uniqueKey{
		Key:       chatGuardKey(chat.Participant1, chat.Participant2),
		OwnerID:   chat.ID,
		ExpiresAt: epochCeil(chat.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chat guard: %w", err)
	}

	err = s.Dynamo.TransactWriteItems(ctx, []types.TransactWriteItem{
		{Update: resolveUpdate(signal)},
		{Delete: releaseGuard(signal)},
		{Put: &types.Put{
			TableName:           aws.String(models.ChatsTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}},
		{Put: &types.Put{
			TableName:                 aws.String(models.UniqueKeysTable),
			Item:                      guard,
			ConditionExpression:       aws.String("attribute_not_exists(uniqueKey) OR expiresAt <= :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": numberValue(chat.CreatedAt.Unix())},
		}},
	})
	if idx, ok := failedConditionIndex(err); ok {
		switch idx {
		case 0, 1:
			return models.ErrSignalNotPending
		case 3:
			return models.ErrChatExists
		default:
			return models.ErrDuplicateKey
		}
	}
	if err != nil {
		return err
	}

	log.Printf("✅ Chat %s created from signal %s", chat.ID, signal.ID)
	return nil
}

func (s *DynamoStore) ListSignalsForRecipient(ctx context.Context, userID string) ([]models.Signal, error) {
	signals := []models.Signal{}
	err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(models.SignalsTable),
		IndexName:                 aws.String(models.ToUserIndex),
		KeyConditionExpression:    aws.String("toUserId = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": stringValue(userID)},
	}, &signals)
	if err != nil {
		return nil, err
	}
	for i := range signals {
		if signals[i].CommonInterests == nil {
			signals[i].CommonInterests = []string{}
		}
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].CreatedAt.After(signals[j].CreatedAt) })
	return signals, nil
}

func (s *DynamoStore) DeleteSignal(ctx context.Context, signalID string) error {
	signal, err := s.GetSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if err := s.Dynamo.DeleteItem(ctx, models.SignalsTable, stringKey("id", signalID), "attribute_exists(id)", nil); err != nil {
		return err
	}

	// The guard may already be gone or owned by a newer signal.
	err = s.Dynamo.DeleteItem(ctx, models.UniqueKeysTable,
		stringKey("uniqueKey", signalGuardKey(signal.FromUserID, signal.ToUserID)),
		"ownerId = :id",
		map[string]types.AttributeValue{":id": stringValue(signalID)},
	)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Printf("⚠️ Failed to release guard for signal %s: %v", signalID, err)
	}
	return nil
}

// ---------------------------------------------------------------- chats

func (s *DynamoStore) FindActiveChatBetween(ctx context.Context, userA, userB string, now time.Time) (*models.Chat, error) {
	var guard uniqueKey
	if err := s.Dynamo.GetItem(ctx, models.UniqueKeysTable, stringKey("uniqueKey", chatGuardKey(userA, userB)), &guard); err != nil {
		return nil, err
	}
	chat, err := s.GetChat(ctx, guard.OwnerID)
	if err != nil {
		return nil, err
	}
	if !chat.IsLive(now) {
		return nil, models.ErrNotFound
	}
	return chat, nil
}

func (s *DynamoStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	if err := s.Dynamo.GetItem(ctx, models.ChatsTable, stringKey("id", chatID), &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListActiveChatsForUser queries both participant indexes concurrently.
func (s *DynamoStore) ListActiveChatsForUser(ctx context.Context, userID string, now time.Time) ([]models.Chat, error) {
	var asFirst, asSecond []models.Chat

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.queryChatIndex(gctx, models.Participant1Index, "participant1", userID, &asFirst)
	})
	g.Go(func() error {
		return s.queryChatIndex(gctx, models.Participant2Index, "participant2", userID, &asSecond)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	chats := []models.Chat{}
	for _, chat := range append(asFirst, asSecond...) {
		if !chat.IsLive(now) || seen[chat.ID] {
			continue
		}
		seen[chat.ID] = true
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].LastActivity.After(chats[j].LastActivity) })
	return chats, nil
}

func (s *DynamoStore) queryChatIndex(ctx context.Context, index, attribute, userID string, out *[]models.Chat) error {
	return s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(models.ChatsTable),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#p = :uid"),
		ExpressionAttributeNames:  map[string]string{"#p": attribute},
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": stringValue(userID)},
	}, out)
}

// TouchChat updates the chat and extends its pair guard in one transaction. The
// chat update only applies when lastActivity is not older than the stored one.
func (s *DynamoStore) TouchChat(ctx context.Context, chat *models.Chat, lastActivity time.Time, lastMessage string, expiresAt time.Time) error {
	err := s.Dynamo.TransactWriteItems(ctx, []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                aws.String(models.ChatsTable),
			Key:                      stringKey("id", chat.ID),
			UpdateExpression:         aws.String("SET lastActivity = :activity, #nanos = :nanos, lastMessage = :message, expiresAt = :expires"),
			ConditionExpression:      aws.String("attribute_exists(id) AND (attribute_not_exists(#nanos) OR #nanos <= :nanos)"),
			ExpressionAttributeNames: map[string]string{"#nanos": activityNanosAttr},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":activity": timeValue(lastActivity),
				":nanos":    numberValue(lastActivity.UnixNano()),
				":message":  stringValue(lastMessage),
				":expires":  timeValue(expiresAt),
			},
		}},
		{Update: &types.Update{
			TableName:                 aws.String(models.UniqueKeysTable),
			Key:                       stringKey("uniqueKey", chatGuardKey(chat.Participant1, chat.Participant2)),
			UpdateExpression:          aws.String("SET expiresAt = :expires"),
			ConditionExpression:       aws.String("ownerId = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expires": numberValue(epochCeil(expiresAt)),
				":id":      stringValue(chat.ID),
			},
		}},
	})
	idx, failed := failedConditionIndex(err)
	if !failed {
		return err
	}
	if idx == 1 {
		// another chat owns the pair now
		return models.ErrNotFound
	}
	if _, err := s.GetChat(ctx, chat.ID); err != nil {
		return err
	}
	log.Printf("⚠️ Skipped stale touch on chat %s", chat.ID)
	return nil
}

// ---------------------------------------------------------------- messages

func (s *DynamoStore) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.SortKey == "" {
		message.SortKey = MessageSortKey(message.CreatedAt, message.ID)
	}
	return s.Dynamo.PutItem(ctx, models.MessagesTable, message, "attribute_not_exists(sortKey)")
}

func (s *DynamoStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(models.MessagesTable),
		KeyConditionExpression:    aws.String("chatId = :chatId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":chatId": stringValue(chatID)},
		ScanIndexForward:          aws.Bool(true), // oldest first
	}, &messages)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// ---------------------------------------------------------------- users

func (s *DynamoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.Dynamo.GetItem(ctx, models.UsersTable, stringKey("userId", userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *DynamoStore) PutUser(ctx context.Context, user *models.User) error {
	return s.Dynamo.PutItem(ctx, models.UsersTable, user, "")
}
