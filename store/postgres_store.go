package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"radar_server/models"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// unique indexes that map to domain errors
const (
	pendingPairIndex = "signals_pending_pair_idx"
	activeChatIndex  = "chats_active_pair_idx"
)

var (
	sessionColumns = []string{
		"user_id", "session_id", "geohash", "lat", "lon",
		"is_active", "last_updated", "created_at", "expires_at",
	}
	signalColumns = []string{
		"id", "from_user_id", "to_user_id", "from_user_session_id", "to_user_session_id",
		"message", "common_interests", "status", "chat_id",
		"created_at", "expires_at", "responded_at",
	}
	chatColumns = []string{
		"id", "participant1", "participant2", "initiated_from_signal", "is_active",
		"last_activity", "last_message", "created_at", "expires_at",
	}
	messageColumns = []string{"id", "chat_id", "sender_id", "content", "read", "created_at"}
	userColumns    = []string{"id", "username", "profile_picture", "bio", "interests", "created_at"}
)

// PostgresStore keeps every record in PostgreSQL. Pair uniqueness is enforced
// by partial unique indexes, see migrations/.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects with lib/pq, verifies the connection and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return NewPostgresStore(db), db, nil
}

// uniqueViolation returns the violated constraint name when err is a unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

func rowsAffected(result sql.Result) int64 {
	n, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------- sessions

func (s *PostgresStore) UpsertSession(ctx context.Context, session *models.Session) error {
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = session.LastUpdated
	}

	query, args, err := psq.Insert("sessions").
		Columns(sessionColumns...).
		Values(session.UserID, session.SessionID, session.Geohash, session.Lat, session.Lon,
			session.IsActive, session.LastUpdated, createdAt, session.ExpiresAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			geohash = EXCLUDED.geohash,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			is_active = EXCLUDED.is_active,
			last_updated = EXCLUDED.last_updated,
			expires_at = EXCLUDED.expires_at
		RETURNING created_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session upsert: %w", err)
	}

	var stored time.Time
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stored); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("upserting session: %w", err)
	}
	session.CreatedAt = stored
	return nil
}

func (s *PostgresStore) DeactivateSession(ctx context.Context, userID string) error {
	query, args, err := psq.Update("sessions").
		Set("is_active", false).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session update: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivating session: %w", err)
	}
	if rowsAffected(result) == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	err := row.Scan(&session.UserID, &session.SessionID, &session.Geohash, &session.Lat, &session.Lon,
		&session.IsActive, &session.LastUpdated, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &session, nil
}

func (s *PostgresStore) getSession(ctx context.Context, where sq.Eq) (*models.Session, error) {
	query, args, err := psq.Select(sessionColumns...).From("sessions").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	return scanSession(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) GetSessionByUser(ctx context.Context, userID string) (*models.Session, error) {
	return s.getSession(ctx, sq.Eq{"user_id": userID})
}

func (s *PostgresStore) GetSessionByToken(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.getSession(ctx, sq.Eq{"session_id": sessionID})
}

func (s *PostgresStore) ListLiveSessionsByGeohash(ctx context.Context, geohash, excludeUserID string, since time.Time) ([]models.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"geohash": geohash, "is_active": true}).
		Where(sq.NotEq{"user_id": excludeUserID}).
		Where(sq.GtOrEq{"last_updated": since}).
		OrderBy("user_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building nearby query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// ---------------------------------------------------------------- signals

func scanSignal(row rowScanner) (*models.Signal, error) {
	var (
		signal      models.Signal
		status      string
		respondedAt sql.NullTime
	)
	err := row.Scan(&signal.ID, &signal.FromUserID, &signal.ToUserID, &signal.FromUserSessionID, &signal.ToUserSessionID,
		&signal.Message, pq.Array(&signal.CommonInterests), &status, &signal.ChatID,
		&signal.CreatedAt, &signal.ExpiresAt, &respondedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning signal: %w", err)
	}

	signal.Status = models.SignalStatus(status)
	if respondedAt.Valid {
		t := respondedAt.Time
		signal.RespondedAt = &t
	}
	if signal.CommonInterests == nil {
		signal.CommonInterests = []string{}
	}
	return &signal, nil
}

func (s *PostgresStore) querySignals(ctx context.Context, qb sq.SelectBuilder) ([]models.Signal, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building signal query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	signals := []models.Signal{}
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signals: %w", err)
	}
	return signals, nil
}

func (s *PostgresStore) FindBlockingSignal(ctx context.Context, fromUserID, toUserID string, now time.Time) (*models.Signal, error) {
	signals, err := s.querySignals(ctx, psq.Select(signalColumns...).
		From("signals").
		Where(sq.Eq{"from_user_id": fromUserID, "to_user_id": toUserID, "status": string(models.SignalStatusPending)}).
		Where(sq.Gt{"expires_at": now}).
		OrderBy("created_at DESC").
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, models.ErrNotFound
	}
	return &signals[0], nil
}

// pairFilter matches rows between a and b in either direction.
func pairFilter(fromColumn, toColumn, a, b string) sq.Or {
	return sq.Or{
		sq.Eq{fromColumn: a, toColumn: b},
		sq.Eq{fromColumn: b, toColumn: a},
	}
}

// CreateSignal first marks lapsed pending signals of the pair as expired so the
// partial unique index only sees signals that still block.
func (s *PostgresStore) CreateSignal(ctx context.Context, signal *models.Signal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	expireQuery, expireArgs, err := psq.Update("signals").
		Set("status", string(models.SignalStatusExpired)).
		Where(sq.Eq{"status": string(models.SignalStatusPending)}).
		Where(sq.LtOrEq{"expires_at": signal.CreatedAt}).
		Where(pairFilter("from_user_id", "to_user_id", signal.FromUserID, signal.ToUserID)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building expiry update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, expireQuery, expireArgs...); err != nil {
		return fmt.Errorf("expiring lapsed signals: %w", err)
	}

	interests := signal.CommonInterests
	if interests == nil {
		interests = []string{}
	}
	insertQuery, insertArgs, err := psq.Insert("signals").
		Columns(signalColumns...).
		Values(signal.ID, signal.FromUserID, signal.ToUserID, signal.FromUserSessionID, signal.ToUserSessionID,
			signal.Message, pq.Array(interests), string(signal.Status), signal.ChatID,
			signal.CreatedAt, signal.ExpiresAt, signal.RespondedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building signal insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == pendingPairIndex {
				return models.ErrPendingSignalExists
			}
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("inserting signal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing signal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSignal(ctx context.Context, signalID string) (*models.Signal, error) {
	query, args, err := psq.Select(signalColumns...).From("signals").Where(sq.Eq{"id": signalID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building signal query: %w", err)
	}
	return scanSignal(s.db.QueryRowContext(ctx, query, args...))
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func resolvePending(ctx context.Context, db execer, signal *models.Signal) error {
	query, args, err := psq.Update("signals").
		Set("status", string(signal.Status)).
		Set("chat_id", signal.ChatID).
		Set("responded_at", signal.RespondedAt).
		Where(sq.Eq{"id": signal.ID, "status": string(models.SignalStatusPending)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building signal update: %w", err)
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("resolving signal: %w", err)
	}
	if rowsAffected(result) == 0 {
		return models.ErrSignalNotPending
	}
	return nil
}

func (s *PostgresStore) ResolveSignal(ctx context.Context, signal *models.Signal) error {
	return resolvePending(ctx, s.db, signal)
}

func (s *PostgresStore) AcceptSignal(ctx context.Context, signal *models.Signal, chat *models.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := resolvePending(ctx, tx, signal); err != nil {
		return err
	}

	// lapsed chats leave the partial unique index before the insert
	expireQuery, expireArgs, err := psq.Update("chats").
		Set("is_active", false).
		Where(sq.Eq{"is_active": true}).
		Where(sq.LtOrEq{"expires_at": chat.CreatedAt}).
		Where(pairFilter("participant1", "participant2", chat.Participant1, chat.Participant2)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building chat expiry update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, expireQuery, expireArgs...); err != nil {
		return fmt.Errorf("expiring lapsed chats: %w", err)
	}

	query, args, err := psq.Insert("chats").
		Columns(chatColumns...).
		Values(chat.ID, chat.Participant1, chat.Participant2, chat.InitiatedFromSignal, chat.IsActive,
			chat.LastActivity, chat.LastMessage, chat.CreatedAt, chat.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building chat insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == activeChatIndex {
				return models.ErrChatExists
			}
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("inserting chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing accept: %w", err)
	}
	log.Printf("✅ Chat %s created from signal %s", chat.ID, signal.ID)
	return nil
}

func (s *PostgresStore) ListSignalsForRecipient(ctx context.Context, userID string) ([]models.Signal, error) {
	return s.querySignals(ctx, psq.Select(signalColumns...).
		From("signals").
		Where(sq.Eq{"to_user_id": userID}).
		OrderBy("created_at DESC"))
}

func (s *PostgresStore) DeleteSignal(ctx context.Context, signalID string) error {
	query, args, err := psq.Delete("signals").Where(sq.Eq{"id": signalID}).ToSql()
	if err != nil {
		return fmt.Errorf("building signal delete: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting signal: %w", err)
	}
	if rowsAffected(result) == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------- chats

func scanChat(row rowScanner) (*models.Chat, error) {
	var chat models.Chat
	err := row.Scan(&chat.ID, &chat.Participant1, &chat.Participant2, &chat.InitiatedFromSignal, &chat.IsActive,
		&chat.LastActivity, &chat.LastMessage, &chat.CreatedAt, &chat.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) FindActiveChatBetween(ctx context.Context, userA, userB string, now time.Time) (*models.Chat, error) {
	query, args, err := psq.Select(chatColumns...).
		From("chats").
		Where(sq.Eq{"is_active": true}).
		Where(sq.Gt{"expires_at": now}).
		Where(pairFilter("participant1", "participant2", userA, userB)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chat query: %w", err)
	}
	return scanChat(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	query, args, err := psq.Select(chatColumns...).From("chats").Where(sq.Eq{"id": chatID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chat query: %w", err)
	}
	return scanChat(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListActiveChatsForUser(ctx context.Context, userID string, now time.Time) ([]models.Chat, error) {
	query, args, err := psq.Select(chatColumns...).
		From("chats").
		Where(sq.Eq{"is_active": true}).
		Where(sq.Gt{"expires_at": now}).
		Where(sq.Or{sq.Eq{"participant1": userID}, sq.Eq{"participant2": userID}}).
		OrderBy("last_activity DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chat query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chats := []models.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chats: %w", err)
	}
	return chats, nil
}

func (s *PostgresStore) TouchChat(ctx context.Context, chat *models.Chat, lastActivity time.Time, lastMessage string, expiresAt time.Time) error {
	query, args, err := psq.Update("chats").
		Set("last_activity", lastActivity).
		Set("last_message", lastMessage).
		Set("expires_at", expiresAt).
		Where(sq.Eq{"id": chat.ID}).
		Where(sq.LtOrEq{"last_activity": lastActivity}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building chat update: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("touching chat: %w", err)
	}
	if rowsAffected(result) > 0 {
		return nil
	}

	// nothing updated: either a newer touch already landed or the chat is gone
	existsQuery, existsArgs, err := psq.Select("1").From("chats").Where(sq.Eq{"id": chat.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("building chat lookup: %w", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, existsQuery, existsArgs...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up chat: %w", err)
	}
	log.Printf("⚠️ Skipped stale touch on chat %s", chat.ID)
	return nil
}

// ---------------------------------------------------------------- messages

func (s *PostgresStore) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.SortKey == "" {
		message.SortKey = MessageSortKey(message.CreatedAt, message.ID)
	}
	query, args, err := psq.Insert("messages").
		Columns(messageColumns...).
		Values(message.ID, message.ChatID, message.SenderID, message.Content, message.Read, message.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building message insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	query, args, err := psq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"chat_id": chatID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.SortKey = MessageSortKey(m.CreatedAt, m.ID)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// ---------------------------------------------------------------- users

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	query, args, err := psq.Select(userColumns...).From("users").Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var user models.User
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.ProfilePicture, &user.Bio, pq.Array(&user.Interests), &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) PutUser(ctx context.Context, user *models.User) error {
	interests := user.Interests
	if interests == nil {
		interests = []string{}
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query, args, err := psq.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Username, user.ProfilePicture, user.Bio, pq.Array(interests), createdAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			profile_picture = EXCLUDED.profile_picture,
			bio = EXCLUDED.bio,
			interests = EXCLUDED.interests`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}
