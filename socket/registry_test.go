package socket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar_server/models"
)

type emitted struct {
	Event   string
	Payload interface{}
}

type fakeEndpoint struct {
	id string

	mu   sync.Mutex
	sent []emitted
}

func newEndpoint(id string) *fakeEndpoint {
	return &fakeEndpoint{id: id}
}

func (e *fakeEndpoint) ID() string { return e.id }

func (e *fakeEndpoint) Emit(event string, args ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var payload interface{}
	if len(args) > 0 {
		payload = args[0]
	}
	e.sent = append(e.sent, emitted{Event: event, Payload: payload})
}

func (e *fakeEndpoint) events(name string) []interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []interface{}
	for _, m := range e.sent {
		if m.Event == name {
			out = append(out, m.Payload)
		}
	}
	return out
}

func (e *fakeEndpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

func TestRegisterAnnouncesToOthers(t *testing.T) {
	r := NewRegistry()
	watcher := newEndpoint("ep-watch")
	r.Connect(watcher)

	ep := newEndpoint("ep-1")
	r.Register("u1", ep)

	assert.True(t, r.IsOnline("u1"))
	userID, ok := r.UserFor(ep)
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, []string{models.RoomForUser("u1")}, r.Rooms(ep))

	assert.Equal(t, []interface{}{models.UserOnlineEvent{UserID: "u1"}}, watcher.events(models.EventUserOnline))
	assert.Empty(t, ep.events(models.EventUserOnline))
}

func TestRegisterEvictsPreviousEndpoint(t *testing.T) {
	r := NewRegistry()
	first := newEndpoint("ep-1")
	second := newEndpoint("ep-2")

	r.Register("u1", first)
	r.JoinRoom(first, models.RoomForChat("c1"))
	r.Register("u1", second)

	require.True(t, r.SendToUser("u1", "hello", "x"))
	assert.Len(t, second.events("hello"), 1)
	assert.Empty(t, first.events("hello"))

	_, ok := r.UserFor(first)
	assert.False(t, ok)
	assert.Empty(t, r.Rooms(first))
	assert.Equal(t, 0, r.BroadcastToRoom(models.RoomForChat("c1"), "chat", nil))
	assert.Equal(t, []string{"u1"}, r.OnlineUsers())

	// the stale endpoint going away must not take the user offline
	r.Unregister(first)
	assert.True(t, r.IsOnline("u1"))
}

func TestReauthenticateAsAnotherUser(t *testing.T) {
	r := NewRegistry()
	watcher := newEndpoint("ep-watch")
	r.Connect(watcher)
	ep := newEndpoint("ep-1")
	r.Register("u1", ep)
	r.Register("u2", ep)

	assert.False(t, r.IsOnline("u1"))
	assert.True(t, r.IsOnline("u2"))
	assert.Equal(t, []string{models.RoomForUser("u2")}, r.Rooms(ep))

	assert.Equal(t, []interface{}{models.UserOfflineEvent{UserID: "u1"}}, watcher.events(models.EventUserOffline))
	assert.Equal(t, []interface{}{
		models.UserOnlineEvent{UserID: "u1"},
		models.UserOnlineEvent{UserID: "u2"},
	}, watcher.events(models.EventUserOnline))
	assert.Empty(t, ep.events(models.EventUserOffline))

	// re-authenticating as the same user announces nothing new offline
	r.Register("u2", ep)
	assert.Len(t, watcher.events(models.EventUserOffline), 1)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	watcher := newEndpoint("ep-watch")
	r.Connect(watcher)
	ep := newEndpoint("ep-1")
	r.Register("u1", ep)
	r.JoinRoom(ep, models.RoomForChat("c1"))

	r.Unregister(ep)

	assert.False(t, r.IsOnline("u1"))
	assert.False(t, r.SendToUser("u1", "hello", nil))
	assert.Empty(t, r.Rooms(ep))
	assert.Equal(t, []interface{}{models.UserOfflineEvent{UserID: "u1"}}, watcher.events(models.EventUserOffline))

	before := watcher.count()
	assert.NotPanics(t, func() { r.Unregister(newEndpoint("never-seen")) })
	assert.NotPanics(t, func() { r.Unregister(ep) })
	assert.Equal(t, before, watcher.count())
}

func TestRooms(t *testing.T) {
	r := NewRegistry()
	a := newEndpoint("a")
	b := newEndpoint("b")
	room := models.RoomForChat("c1")

	r.JoinRoom(a, room)
	r.JoinRoom(b, room)
	r.JoinRoom(b, room)
	assert.Equal(t, 2, r.BroadcastToRoom(room, "ev", 1))

	r.LeaveRoom(a, room)
	assert.Equal(t, 1, r.BroadcastToRoom(room, "ev", 2))
	assert.Len(t, a.events("ev"), 1)
	assert.Len(t, b.events("ev"), 2)

	assert.Equal(t, 0, r.BroadcastToRoom("nobody", "ev", 3))
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep := newEndpoint(fmt.Sprintf("ep-%d", i))
			user := fmt.Sprintf("u%d", i%5)
			r.Connect(ep)
			r.Register(user, ep)
			r.JoinRoom(ep, models.RoomForChat("shared"))
			r.SendToUser(user, "ping", nil)
			r.BroadcastToRoom(models.RoomForChat("shared"), "ev", nil)
			if i%2 == 0 {
				r.Unregister(ep)
			}
		}()
	}
	wg.Wait()

	for _, user := range r.OnlineUsers() {
		assert.True(t, r.IsOnline(user))
	}
	assert.LessOrEqual(t, len(r.OnlineUsers()), 5)
}
