package server

import (
	"errors"
	"log"
	"sync"
	"time"

	"taskchat/internal/domain"
	"taskchat/internal/token"
	"taskchat/internal/types"
)

const (
	idleRoomTimeout = 30 * time.Second
	typingTimeout   = 3 * time.Second
)

type exitReq struct {
	deleted bool
	done    chan struct{}
}

// Room is the transport-level channel for one domain room. All state below
// is owned by the room goroutine; the clientLock only guards the membership
// maps read by broadcast helpers.
type Room struct {
	id           int
	externalId   string
	name         string
	cs           *ChatServer
	log          *log.Logger
	participants map[int]struct{}

	clients map[*Client]struct{}
	userMap map[int]map[*Client]struct{}

	clientLock sync.RWMutex

	joinChan  chan *ClientEvent
	leaveChan chan *ClientEvent
	eventChan chan *ClientEvent
	bcastChan chan *ServerEvent

	// typing state is ephemeral: an entry self-expires after typingTimeout
	// unless re-armed by another typing event
	typingTimers  map[int]*time.Timer
	typingExpired chan int

	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %d", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case ev := <-r.joinChan:
			r.handleJoin(ev)
		case ev := <-r.leaveChan:
			r.handleLeave(ev)
		case ev := <-r.eventChan:
			switch {
			case ev.Send != nil:
				r.handleSend(ev)
			case ev.Typing != nil:
				r.handleTyping(ev)
			}
		case userId := <-r.typingExpired:
			r.clearTyping(userId)
		case ev := <-r.bcastChan:
			r.broadcast(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(ev *ClientEvent) {
	r.killTimer.Stop()

	c := ev.client
	// access control lives in the use-case layer; the gateway only supplies
	// the identity attached at connect time
	room, err := r.cs.roomSvc.Get(c.user.Id, r.id)
	if err != nil {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		c.queueEvent(errorEventFrom(ev.Id, err))
		return
	}

	r.setParticipants(room.Participants)
	r.addClient(c)

	// the joining socket gets the room snapshot back
	c.queueEvent(okResponse(ev.Id, &room))

	// everyone else in the channel learns about the join
	r.broadcast(&ServerEvent{
		Timestamp:  Now(),
		UserJoined: &RoomPresence{RoomId: r.id, UserId: c.user.Id, Username: c.user.Username},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(ev *ClientEvent) {
	c := ev.client
	r.removeClient(c)

	if ev.disconnect {
		// transport teardown: report the user offline in this room once its
		// last socket here is gone
		if !r.hasUser(c.user.Id) {
			r.broadcast(&ServerEvent{
				Timestamp:         Now(),
				UserOfflineInRoom: &RoomPresence{RoomId: r.id, UserId: c.user.Id, Username: c.user.Username},
				SkipClient:        c,
			})
		}
		return
	}

	c.queueEvent(okResponse(ev.Id, nil))
	r.broadcast(&ServerEvent{
		Timestamp:  Now(),
		UserLeft:   &RoomPresence{RoomId: r.id, UserId: c.user.Id, Username: c.user.Username},
		SkipClient: c,
	})
}

func (r *Room) handleSend(ev *ClientEvent) {
	c := ev.client

	msg, err := r.cs.msgSvc.Send(c.user.Id, r.id, ev.Send.CorrelationId, ev.Send.Content)
	if err != nil {
		r.log.Printf("send message in room %d: %v", r.id, err)
		// failures go to the offending socket only, never the channel
		c.queueEvent(errorEventFrom(ev.Id, err))
		return
	}

	msg.Username = c.user.Username
	r.cs.stats.Incr("NumMessages")

	// the sender receives the broadcast too and reconciles its optimistic
	// copy by correlation id
	r.broadcast(&ServerEvent{
		Timestamp:  Now(),
		NewMessage: &msg,
	})
}

func (r *Room) handleTyping(ev *ClientEvent) {
	c := ev.client

	if ev.Typing.IsTyping {
		if t, ok := r.typingTimers[c.user.Id]; ok {
			t.Reset(typingTimeout)
		} else {
			userId := c.user.Id
			r.typingTimers[userId] = time.AfterFunc(typingTimeout, func() {
				select {
				case r.typingExpired <- userId:
				default:
				}
			})
		}
	} else {
		if t, ok := r.typingTimers[c.user.Id]; ok {
			t.Stop()
			delete(r.typingTimers, c.user.Id)
		}
	}

	r.broadcast(&ServerEvent{
		Timestamp: Now(),
		UserTyping: &TypingNotice{
			RoomId:   r.id,
			UserId:   c.user.Id,
			Username: c.user.Username,
			IsTyping: ev.Typing.IsTyping,
		},
		SkipClient: c,
	})
}

// clearTyping fires when a typing entry expires without being re-armed.
func (r *Room) clearTyping(userId int) {
	t, ok := r.typingTimers[userId]
	if !ok {
		return
	}
	t.Stop()
	delete(r.typingTimers, userId)

	r.broadcast(&ServerEvent{
		Timestamp:  Now(),
		UserTyping: &TypingNotice{RoomId: r.id, UserId: userId, IsTyping: false},
	})
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %d idle, unloading", r.id)
	r.cs.unloadRoomChan <- r.id
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %d is exiting", r.id)

	for _, t := range r.typingTimers {
		t.Stop()
	}

	if e.deleted {
		r.broadcast(&ServerEvent{
			Timestamp:   Now(),
			RoomDeleted: &RoomRef{RoomId: r.id, Name: r.name},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		close(e.done)
	}
	close(r.done)
}

func (r *Room) setParticipants(users []types.User) {
	ids := make(map[int]struct{}, len(users))
	for _, u := range users {
		ids[u.Id] = struct{}{}
	}
	r.participants = ids
}

func (r *Room) isParticipant(userId int) bool {
	_, ok := r.participants[userId]
	return ok
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in room %d, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) hasUser(userId int) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.userMap[userId]) > 0
}

// broadcast fans an event out to every socket in the channel except
// SkipClient. Per-channel ordering follows handler completion order; there
// is no ordering guarantee across rooms.
func (r *Room) broadcast(ev *ServerEvent) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == ev.SkipClient {
			continue
		}

		client.queueEvent(ev)
	}
}

// errorEventFrom maps a use-case error to a scoped error event for the
// offending socket.
func errorEventFrom(id int, err error) *ServerEvent {
	var authErr *domain.AuthorizationError
	var vErr *domain.ValidationError

	switch {
	case errors.As(err, &authErr):
		return errorEvent(id, "authorization_error", authErr.Reason)
	case errors.As(err, &vErr):
		return errorEvent(id, "validation_error", vErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errorEvent(id, "not_found", "not found")
	case errors.Is(err, domain.ErrConflict):
		return errorEvent(id, "conflict", "already exists")
	case errors.Is(err, token.ErrTokenExpired):
		return errorEvent(id, CodeTokenExpired, "token expired")
	case errors.Is(err, token.ErrTokenInvalid):
		return errorEvent(id, CodeTokenInvalid, "invalid token")
	default:
		return errorEvent(id, "internal_error", "internal server error")
	}
}
