package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"radar_server/models"
	"radar_server/store"
)

// Paris coordinates. The first three share the geohash bucket u09tvw0.
const (
	parisLat   = 48.8566
	parisLon   = 2.3522
	nearLat    = 48.8567 // ~13m from paris
	nearLon    = 2.3523
	fartherLat = 48.8570 // ~70m from paris
	fartherLon = 2.3515
	edgeLat    = 48.8570 // across the bucket's eastern edge, u09tvw1
	edgeLon    = 2.3525
)

type recordedEvent struct {
	Target string
	Event  models.Event
}

// recordingNotifier records every event and reports users in online as reachable.
type recordingNotifier struct {
	mu     sync.Mutex
	online map[string]bool
	users  []recordedEvent
	chats  []recordedEvent
}

func newRecordingNotifier(online ...string) *recordingNotifier {
	n := &recordingNotifier{online: make(map[string]bool)}
	for _, id := range online {
		n.online[id] = true
	}
	return n
}

func (n *recordingNotifier) NotifyUser(userID string, event models.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, recordedEvent{Target: userID, Event: event})
	return n.online[userID]
}

func (n *recordingNotifier) NotifyChat(chatID string, event models.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chats = append(n.chats, recordedEvent{Target: chatID, Event: event})
	return 1
}

func (n *recordingNotifier) userEvents(name string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.users {
		if e.Event.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	now      time.Time
	store    *store.MemoryStore
	notifier *recordingNotifier
	sessions *SessionService
	profiles *UserProfileService
	nearby   *NearbyService
	signals  *SignalService
	chats    *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		store:    store.NewMemoryStore(),
		notifier: newRecordingNotifier(),
	}
	clock := Clock(func() time.Time { return f.now })

	f.sessions = NewSessionService(f.store, models.DefaultSessionLiveness, models.DefaultSessionRecordTTL)
	f.sessions.Clock = clock
	f.profiles = &UserProfileService{Users: f.store}
	f.nearby = &NearbyService{Sessions: f.sessions, Profiles: f.profiles}
	f.signals = NewSignalService(f.store, f.sessions, f.profiles, f.notifier, models.DefaultSignalTTL, models.DefaultChatTTL)
	f.signals.Clock = clock
	f.chats = NewChatService(f.store, f.profiles, f.notifier, models.DefaultChatTTL)
	f.chats.Clock = clock
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) user(t *testing.T, id string, interests ...string) {
	t.Helper()
	require.NoError(t, f.store.PutUser(context.Background(), &models.User{
		ID:        id,
		Username:  id + "_name",
		Interests: interests,
	}))
}

func (f *fixture) locate(t *testing.T, id string, lat, lon float64) *models.Session {
	t.Helper()
	session, err := f.sessions.UpsertSession(context.Background(), id, lat, lon)
	require.NoError(t, err)
	return session
}

// pair seeds two located users and returns b's session token.
func (f *fixture) pair(t *testing.T, a, b string) string {
	t.Helper()
	f.user(t, a)
	f.user(t, b)
	f.locate(t, a, parisLat, parisLon)
	return f.locate(t, b, nearLat, nearLon).SessionID
}

func requireKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, models.KindOf(err), "error: %v", err)
}
