package socket

import (
	"log"
	"sort"
	"sync"

	"radar_server/models"
)

// Endpoint is one live realtime connection. socketio.Conn satisfies it.
type Endpoint interface {
	ID() string
	Emit(event string, args ...interface{})
}

// Registry maps authenticated users to their single live endpoint and tracks
// room membership. It is safe for concurrent use; emits happen after the lock
// is released.
type Registry struct {
	mu        sync.RWMutex
	connected map[string]Endpoint            // endpoint id -> endpoint
	byUser    map[string]Endpoint            // user id -> endpoint
	byConn    map[string]string              // endpoint id -> user id
	rooms     map[string]map[string]Endpoint // room -> endpoint id -> endpoint
	joined    map[string]map[string]struct{} // endpoint id -> rooms
}

func NewRegistry() *Registry {
	return &Registry{
		connected: make(map[string]Endpoint),
		byUser:    make(map[string]Endpoint),
		byConn:    make(map[string]string),
		rooms:     make(map[string]map[string]Endpoint),
		joined:    make(map[string]map[string]struct{}),
	}
}

// Connect tracks a transport connection before it authenticates.
func (r *Registry) Connect(ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[ep.ID()] = ep
}

// Register binds userID to ep. A previous endpoint of the same user is evicted
// along with its rooms, and every other connected endpoint hears user_online.
// When ep was bound to another user, that user is announced offline first.
func (r *Registry) Register(userID string, ep Endpoint) {
	var replaced string
	r.mu.Lock()
	if old, ok := r.byUser[userID]; ok && old.ID() != ep.ID() {
		delete(r.byConn, old.ID())
		r.leaveAllLocked(old.ID())
		log.Printf("♻️ Evicted endpoint %s of user %s", old.ID(), userID)
	}
	// the same endpoint re-authenticating as someone else
	if previous, ok := r.byConn[ep.ID()]; ok && previous != userID {
		delete(r.byUser, previous)
		r.leaveLocked(ep.ID(), models.RoomForUser(previous))
		replaced = previous
	}

	r.connected[ep.ID()] = ep
	r.byUser[userID] = ep
	r.byConn[ep.ID()] = userID
	r.joinLocked(ep, models.RoomForUser(userID))
	others := r.othersLocked(ep.ID())
	r.mu.Unlock()

	if replaced != "" {
		log.Printf("👋 User %s went offline, endpoint %s now belongs to %s", replaced, ep.ID(), userID)
		offline := models.UserOfflineEvent{UserID: replaced}
		for _, other := range others {
			other.Emit(offline.EventName(), offline)
		}
	}

	log.Printf("✅ User %s registered on endpoint %s", userID, ep.ID())
	event := models.UserOnlineEvent{UserID: userID}
	for _, other := range others {
		other.Emit(event.EventName(), event)
	}
}

// Unregister forgets ep. Unknown endpoints are ignored. When ep belonged to a
// user, the remaining endpoints hear user_offline.
func (r *Registry) Unregister(ep Endpoint) {
	r.mu.Lock()
	delete(r.connected, ep.ID())
	r.leaveAllLocked(ep.ID())

	userID, ok := r.byConn[ep.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byConn, ep.ID())
	if current, ok := r.byUser[userID]; ok && current.ID() == ep.ID() {
		delete(r.byUser, userID)
	}
	others := r.othersLocked(ep.ID())
	r.mu.Unlock()

	log.Printf("👋 User %s went offline", userID)
	event := models.UserOfflineEvent{UserID: userID}
	for _, other := range others {
		other.Emit(event.EventName(), event)
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// OnlineUsers lists registered user ids in ascending order.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// UserFor returns the user ep is authenticated as.
func (r *Registry) UserFor(ep Endpoint) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[ep.ID()]
	return userID, ok
}

// SendToUser emits to the user's current endpoint and reports whether one existed.
func (r *Registry) SendToUser(userID, event string, payload interface{}) bool {
	r.mu.RLock()
	ep, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	ep.Emit(event, payload)
	return true
}

func (r *Registry) JoinRoom(ep Endpoint, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(ep, room)
}

func (r *Registry) LeaveRoom(ep Endpoint, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(ep.ID(), room)
}

// Rooms lists the rooms ep has joined.
func (r *Registry) Rooms(ep Endpoint) []string {
	r.mu.RLock()
	rooms := make([]string, 0, len(r.joined[ep.ID()]))
	for room := range r.joined[ep.ID()] {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()
	sort.Strings(rooms)
	return rooms
}

// BroadcastToRoom emits to every member of room and returns how many were reached.
func (r *Registry) BroadcastToRoom(room, event string, payload interface{}) int {
	r.mu.RLock()
	members := make([]Endpoint, 0, len(r.rooms[room]))
	for _, ep := range r.rooms[room] {
		members = append(members, ep)
	}
	r.mu.RUnlock()

	for _, ep := range members {
		ep.Emit(event, payload)
	}
	return len(members)
}

// BroadcastExcept emits to every connected endpoint other than ep and returns
// how many were reached.
func (r *Registry) BroadcastExcept(ep Endpoint, event string, payload interface{}) int {
	r.mu.RLock()
	others := r.othersLocked(ep.ID())
	r.mu.RUnlock()

	for _, other := range others {
		other.Emit(event, payload)
	}
	return len(others)
}

func (r *Registry) joinLocked(ep Endpoint, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Endpoint)
		r.rooms[room] = members
	}
	members[ep.ID()] = ep

	rooms, ok := r.joined[ep.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[ep.ID()] = rooms
	}
	rooms[room] = struct{}{}
}

func (r *Registry) leaveLocked(endpointID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, endpointID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[endpointID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, endpointID)
		}
	}
}

func (r *Registry) leaveAllLocked(endpointID string) {
	for room := range r.joined[endpointID] {
		r.leaveLocked(endpointID, room)
	}
}

func (r *Registry) othersLocked(endpointID string) []Endpoint {
	others := make([]Endpoint, 0, len(r.connected))
	for id, ep := range r.connected {
		if id != endpointID {
			others = append(others, ep)
		}
	}
	return others
}
