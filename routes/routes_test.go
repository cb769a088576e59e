package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar_server/middleware"
	"radar_server/models"
	"radar_server/services"
	"radar_server/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	router *mux.Router
	store  *store.MemoryStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	st := store.NewMemoryStore()
	for _, u := range []models.User{
		{ID: "alice", Username: "Alice", Interests: []string{"music", "hiking"}},
		{ID: "bob", Username: "Bob", Interests: []string{"hiking", "chess"}},
		{ID: "carol", Username: "Carol"},
	} {
		require.NoError(t, st.PutUser(context.Background(), &u))
	}

	profiles := &services.UserProfileService{Users: st}
	sessions := services.NewSessionService(st, 0, 0)
	nearby := &services.NearbyService{Sessions: sessions, Profiles: profiles}
	signals := services.NewSignalService(st, sessions, profiles, nil, 0, 0)
	chats := services.NewChatService(st, profiles, nil, 0)

	r := mux.NewRouter()
	RegisterRoutes(r)
	apiRouter := APIRouter(r, middleware.NewAuth(""))
	RegisterLocationRoutes(apiRouter, sessions, nearby)
	RegisterSignalRoutes(apiRouter, signals)
	RegisterChatRoutes(apiRouter, chats)
	RegisterUserProfileRoutes(apiRouter, profiles)

	return &api{router: r, store: st}
}

func (a *api) call(t *testing.T, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (a *api) locate(t *testing.T, userID string, lat, lon float64) models.Session {
	t.Helper()
	status, env := a.call(t, http.MethodPost, "/api/location", userID, map[string]float64{"latitude": lat, "longitude": lon})
	require.Equal(t, http.StatusOK, status, env.Message)
	var session models.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session
}

func TestHealthAndWelcome(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/health", "/"} {
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	a := newAPI(t)
	status, env := a.call(t, http.MethodGet, "/api/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestLocationAndNearby(t *testing.T) {
	a := newAPI(t)
	session := a.locate(t, "bob", 48.8567, 2.3523)
	assert.Equal(t, "session_bob", session.SessionID)
	assert.Equal(t, "u09tvw0", session.Geohash)

	status, env := a.call(t, http.MethodGet, "/api/nearby?latitude=48.8566&longitude=2.3522", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var result services.NearbyResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "session_alice", result.SessionID)
	require.Len(t, result.Users, 1)
	assert.Equal(t, "bob", result.Users[0].User.ID)
	assert.Equal(t, []string{"hiking"}, result.Users[0].CommonInterests)
	assert.Less(t, result.Users[0].Distance, 100.0)

	status, _ = a.call(t, http.MethodGet, "/api/nearby?latitude=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = a.call(t, http.MethodPost, "/api/location", "alice", map[string]float64{"latitude": 123, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, _ = a.call(t, http.MethodPost, "/api/location", "alice", map[string]float64{"latitude": 1})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSignalLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.locate(t, "alice", 48.8566, 2.3522)
	bob := a.locate(t, "bob", 48.8567, 2.3523)

	status, env := a.call(t, http.MethodPost, "/api/signals", "alice", map[string]string{"toSessionId": bob.SessionID, "message": "hi"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var sent struct {
		Signal    models.Signal `json:"signal"`
		Delivered bool          `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.False(t, sent.Delivered)
	assert.Equal(t, models.SignalStatusPending, sent.Signal.Status)

	status, env = a.call(t, http.MethodPost, "/api/signals", "bob", map[string]string{"targetUserId": "alice"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, services.ReasonPendingIncoming, env.Message)

	status, env = a.call(t, http.MethodGet, "/api/signals/received", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	var received []models.Signal
	require.NoError(t, json.Unmarshal(env.Data, &received))
	require.Len(t, received, 1)

	status, _ = a.call(t, http.MethodPost, "/api/signals/respond", "alice", map[string]string{"signalId": sent.Signal.ID, "response": "accepted"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = a.call(t, http.MethodPost, "/api/signals/respond", "bob", map[string]string{"signalId": sent.Signal.ID, "response": "accepted"})
	require.Equal(t, http.StatusOK, status, env.Message)
	var responded services.RespondResult
	require.NoError(t, json.Unmarshal(env.Data, &responded))
	require.NotEmpty(t, responded.ChatID)

	status, env = a.call(t, http.MethodPost, "/api/signals/respond", "bob", map[string]string{"signalId": sent.Signal.ID, "response": "accepted"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already resolved", env.Message)

	messagesPath := "/api/chats/" + responded.ChatID + "/messages"
	status, _ = a.call(t, http.MethodPost, messagesPath, "alice", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = a.call(t, http.MethodPost, messagesPath, "carol", map[string]string{"content": "let me in"})
	assert.Equal(t, http.StatusNotFound, status)

	status, env = a.call(t, http.MethodGet, messagesPath, "bob", nil)
	require.Equal(t, http.StatusOK, status)
	var messages []models.MessageView
	require.NoError(t, json.Unmarshal(env.Data, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)

	status, env = a.call(t, http.MethodGet, "/api/chats", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	var chats []models.ChatSummary
	require.NoError(t, json.Unmarshal(env.Data, &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, "alice", chats[0].OtherUser.ID)
	assert.Equal(t, "hello", chats[0].LastMessage)
}

func TestDeleteSignalOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.locate(t, "alice", 48.8566, 2.3522)
	a.locate(t, "bob", 48.8567, 2.3523)

	status, env := a.call(t, http.MethodPost, "/api/signals", "alice", map[string]string{"targetUserId": "bob"})
	require.Equal(t, http.StatusCreated, status)
	var sent struct {
		Signal models.Signal `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sent))

	status, _ = a.call(t, http.MethodDelete, "/api/signals/"+sent.Signal.ID, "carol", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.call(t, http.MethodDelete, "/api/signals/"+sent.Signal.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.call(t, http.MethodDelete, "/api/signals/"+sent.Signal.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLogoutHidesSession(t *testing.T) {
	a := newAPI(t)
	a.locate(t, "alice", 48.8566, 2.3522)
	bob := a.locate(t, "bob", 48.8567, 2.3523)

	status, _ := a.call(t, http.MethodPost, "/api/logout", "bob", nil)
	require.Equal(t, http.StatusOK, status)

	status, env := a.call(t, http.MethodPost, "/api/signals", "alice", map[string]string{"toSessionId": bob.SessionID})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "target not active", env.Message)

	// logging out twice is harmless
	status, _ = a.call(t, http.MethodPost, "/api/logout", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestGetUserProfile(t *testing.T) {
	a := newAPI(t)
	status, env := a.call(t, http.MethodGet, "/api/users/bob", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var profile models.PublicProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "Bob", profile.Username)

	status, env = a.call(t, http.MethodGet, "/api/users/ghost", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "user not found", env.Message)
}

func TestInvalidBody(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/signals", bytes.NewBufferString("{not json"))
	req.Header.Set(middleware.UserIDHeader, "alice")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
