package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar_server/models"
)

func TestAuthenticateListsOnlineUsers(t *testing.T) {
	rt := newRealtime(t)
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	assert.Equal(t, []interface{}{onlineUsersReply{Users: []string{}}}, alice.events(EventOnlineUsers))
	assert.Equal(t, []interface{}{onlineUsersReply{Users: []string{"alice"}}}, bob.events(EventOnlineUsers))
}

func TestUpdatePosition(t *testing.T) {
	rt := newRealtime(t)
	ctx := context.Background()
	watcher := newEndpoint("watcher")
	rt.handler.Connect(watcher)
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	rt.handler.UpdatePosition(alice, UpdatePositionPayload{Latitude: 48.8570, Longitude: 2.3525})

	for _, ep := range []*fakeEndpoint{bob, watcher} {
		updates := ep.events(models.EventUserPositionUpdated)
		require.Len(t, updates, 1)
		event := updates[0].(models.UserPositionUpdatedEvent)
		assert.Equal(t, "alice", event.UserID)
		assert.Equal(t, models.Position{Latitude: 48.8570, Longitude: 2.3525}, event.Position)
		assert.False(t, event.UpdatedAt.IsZero())
	}
	assert.Empty(t, alice.events(models.EventUserPositionUpdated))

	session, err := rt.sessions.FindActiveByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 48.8570, session.Lat)
	assert.Equal(t, 2.3525, session.Lon)

	rt.handler.UpdatePosition(alice, UpdatePositionPayload{Latitude: 91, Longitude: 0})
	assert.Equal(t, []interface{}{errorReply{Message: "invalid coordinates"}}, alice.events(EventPositionError))
	assert.Len(t, bob.events(models.EventUserPositionUpdated), 1)

	stranger := newEndpoint("stranger")
	rt.handler.Connect(stranger)
	rt.handler.UpdatePosition(stranger, UpdatePositionPayload{Latitude: 48.8566, Longitude: 2.3522})
	assert.Equal(t, []interface{}{errorReply{Message: errNotAuthenticated}}, stranger.events(EventPositionError))
}

func TestCallAccepted(t *testing.T) {
	rt := newRealtime(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rt.handler.Clock = func() time.Time { return now }
	rt.handler.CallTimeout = time.Hour
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	rt.handler.CallRequest(alice, CallRequestPayload{To: "bob", CallType: models.CallTypeAudio})

	rings := bob.events(models.EventIncomingCall)
	require.Len(t, rings, 1)
	ring := rings[0].(models.IncomingCallEvent)
	assert.Equal(t, "alice", ring.From)
	assert.Equal(t, "Alice", ring.FromUser.Username)
	assert.Equal(t, models.CallTypeAudio, ring.CallType)
	assert.Equal(t, now, ring.Timestamp)
	assert.True(t, rt.handler.calls.pending("alice", "bob"))

	rt.handler.CallResponse(bob, CallResponsePayload{To: "alice", Type: CallAccepted, ChatID: "c1"})

	assert.Equal(t, []interface{}{models.CallAcceptedEvent{From: "bob", ChatID: "c1", Timestamp: now}}, alice.events(models.EventCallAccepted))
	assert.False(t, rt.handler.calls.pending("alice", "bob"))
	assert.Empty(t, alice.events(EventCallError))
	assert.Empty(t, bob.events(EventCallError))
}

func TestCallRejectedAndEnded(t *testing.T) {
	rt := newRealtime(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rt.handler.Clock = func() time.Time { return now }
	rt.handler.CallTimeout = time.Hour
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	rt.handler.CallRequest(alice, CallRequestPayload{To: "bob"})
	ring := bob.events(models.EventIncomingCall)[0].(models.IncomingCallEvent)
	assert.Equal(t, models.CallTypeVideo, ring.CallType)

	rt.handler.CallResponse(bob, CallResponsePayload{To: "alice", Type: CallRejected})
	assert.Equal(t, []interface{}{models.CallRejectedEvent{From: "bob", Timestamp: now}}, alice.events(models.EventCallRejected))
	assert.False(t, rt.handler.calls.pending("alice", "bob"))

	// hanging up before an answer stops the ring
	rt.handler.CallRequest(alice, CallRequestPayload{To: "bob"})
	require.True(t, rt.handler.calls.pending("alice", "bob"))
	rt.handler.CallEnd(alice, CallEndPayload{To: "bob"})
	assert.False(t, rt.handler.calls.pending("alice", "bob"))
	assert.Equal(t, []interface{}{models.CallEndedEvent{From: "alice", Timestamp: now}}, bob.events(models.EventCallEnded))

	// either side may hang up
	rt.handler.CallEnd(bob, CallEndPayload{To: "alice"})
	assert.Equal(t, []interface{}{models.CallEndedEvent{From: "bob", Timestamp: now}}, alice.events(models.EventCallEnded))
}

func TestUnansweredCallTimesOut(t *testing.T) {
	rt := newRealtime(t)
	rt.handler.CallTimeout = 20 * time.Millisecond
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	rt.handler.CallRequest(alice, CallRequestPayload{To: "bob", ChatID: ""})

	require.Eventually(t, func() bool {
		return len(bob.events(models.EventCallTimeout)) == 1 && len(alice.events(models.EventCallTimeout)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.CallTimeoutEvent{From: "alice"}, bob.events(models.EventCallTimeout)[0])
	assert.Equal(t, models.CallTimeoutEvent{To: "bob"}, alice.events(models.EventCallTimeout)[0])
	assert.False(t, rt.handler.calls.pending("alice", "bob"))
}

func TestAnsweredCallDoesNotTimeOut(t *testing.T) {
	rt := newRealtime(t)
	rt.handler.CallTimeout = 20 * time.Millisecond
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	rt.handler.CallRequest(alice, CallRequestPayload{To: "bob"})
	rt.handler.CallResponse(bob, CallResponsePayload{To: "alice", Type: CallAccepted})

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, alice.events(models.EventCallTimeout))
	assert.Empty(t, bob.events(models.EventCallTimeout))
}

func TestCallErrors(t *testing.T) {
	rt := newRealtime(t)
	rt.handler.CallTimeout = time.Hour
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	rt.online(t, "bob", 48.8567, 2.3523)

	stranger := newEndpoint("stranger")
	rt.handler.Connect(stranger)
	rt.handler.CallRequest(stranger, CallRequestPayload{To: "bob"})
	rt.handler.CallResponse(stranger, CallResponsePayload{To: "bob", Type: CallAccepted})
	rt.handler.CallEnd(stranger, CallEndPayload{To: "bob"})
	rt.handler.WebRTCSignal(stranger, WebRTCSignalPayload{To: "bob", Type: "offer", SDP: json.RawMessage(`"v=0"`)})
	assert.Len(t, stranger.events(EventCallError), 4)

	cases := []struct {
		name    string
		call    func()
		message string
	}{
		{"offline callee", func() { rt.handler.CallRequest(alice, CallRequestPayload{To: "carol"}) }, "user not connected"},
		{"calling yourself", func() { rt.handler.CallRequest(alice, CallRequestPayload{To: "alice"}) }, "a call needs another user"},
		{"unknown call type", func() { rt.handler.CallRequest(alice, CallRequestPayload{To: "bob", CallType: "fax"}) }, "callType must be video or audio"},
		{"chat the caller is not in", func() { rt.handler.CallRequest(alice, CallRequestPayload{To: "bob", ChatID: "missing"}) }, "chat not found"},
		{"unknown response", func() { rt.handler.CallResponse(alice, CallResponsePayload{To: "bob", Type: "maybe"}) }, "type must be accepted or rejected"},
		{"hang up on nobody", func() { rt.handler.CallEnd(alice, CallEndPayload{}) }, "to is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(alice.events(EventCallError))
			tc.call()
			errs := alice.events(EventCallError)
			require.Len(t, errs, before+1)
			assert.Equal(t, errorReply{Message: tc.message}, errs[before])
		})
	}
	assert.False(t, rt.handler.calls.pending("alice", "carol"))
	assert.False(t, rt.handler.calls.pending("alice", "bob"))
}

func TestWebRTCSignalRelay(t *testing.T) {
	rt := newRealtime(t)
	alice := rt.online(t, "alice", 48.8566, 2.3522)
	bob := rt.online(t, "bob", 48.8567, 2.3523)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	rt.handler.WebRTCSignal(alice, WebRTCSignalPayload{To: "bob", Type: "offer", SDP: offer})

	relayed := bob.events(models.EventWebRTCSignal)
	require.Len(t, relayed, 1)
	assert.Equal(t, models.WebRTCSignalEvent{From: "alice", To: "bob", Type: "offer", SDP: offer}, relayed[0])

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host"}`)
	rt.handler.WebRTCSignal(bob, WebRTCSignalPayload{To: "alice", Type: "ice-candidate", Candidate: candidate})
	require.Len(t, alice.events(models.EventWebRTCSignal), 1)
	assert.Equal(t, "bob", alice.events(models.EventWebRTCSignal)[0].(models.WebRTCSignalEvent).From)

	rt.handler.WebRTCSignal(alice, WebRTCSignalPayload{To: "bob", Type: "offer"})
	rt.handler.WebRTCSignal(alice, WebRTCSignalPayload{To: "carol", Type: "offer", SDP: offer})
	errs := alice.events(EventCallError)
	require.Len(t, errs, 2)
	assert.Equal(t, errorReply{Message: "user not connected"}, errs[1])
	assert.Len(t, bob.events(models.EventWebRTCSignal), 1)
}
