package server

import (
	"context"
	"log"
	"time"

	"taskchat/internal/stats"
	"taskchat/internal/types"
)

// RoomUseCase and MessageUseCase are the slices of the application layer the
// gateway needs. The dependency is one-directional: use-cases return values
// and the gateway broadcasts afterwards; a use-case never calls back into
// the gateway.
type RoomUseCase interface {
	Get(userId, roomId int) (types.Room, error)
}

type MessageUseCase interface {
	Send(userId, roomId int, correlationId, content string) (types.Message, error)
}

type roomBroadcast struct {
	roomId int
	ev     *ServerEvent
}

type unloadReq struct {
	roomId  int
	deleted bool
}

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the connection registry and the set of loaded room
// channels. Room lifecycle and event routing are serialized through the run
// loop; per-room traffic is handled by one goroutine per room.
type ChatServer struct {
	log      *log.Logger
	roomSvc  RoomUseCase
	msgSvc   MessageUseCase
	stats    stats.StatsProvider
	registry *ConnectionRegistry

	rooms map[int]*Room

	joinChan       chan *ClientEvent
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	notifyChan     chan *ServerEvent
	roomBcastChan  chan *roomBroadcast
	rmRoomChan     chan *unloadReq
	unloadRoomChan chan int
	stop           chan stopReq
}

func NewChatServer(logger *log.Logger, roomSvc RoomUseCase, msgSvc MessageUseCase, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		roomSvc:        roomSvc,
		msgSvc:         msgSvc,
		stats:          su,
		registry:       NewConnectionRegistry(),
		rooms:          make(map[int]*Room),
		joinChan:       make(chan *ClientEvent, 256),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		notifyChan:     make(chan *ServerEvent, 256),
		roomBcastChan:  make(chan *roomBroadcast, 256),
		rmRoomChan:     make(chan *unloadReq),
		unloadRoomChan: make(chan int),
		stop:           make(chan stopReq),
	}

	for _, name := range []string{"NumConnections", "NumOnlineUsers", "NumActiveRooms", "NumMessages"} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case ev := <-cs.joinChan:
			cs.handleJoin(ev)
		case c := <-cs.RegisterChan:
			cs.registerClient(c)
		case c := <-cs.deRegisterChan:
			cs.deRegisterClient(c)
		case ev := <-cs.notifyChan:
			cs.deliverToUser(ev)
		case rb := <-cs.roomBcastChan:
			if r, ok := cs.rooms[rb.roomId]; ok {
				select {
				case r.bcastChan <- rb.ev:
				default:
					cs.log.Printf("bcastChan full for room %d", rb.roomId)
				}
			}
		case req := <-cs.rmRoomChan:
			cs.removeRoom(req)
		case id := <-cs.unloadRoomChan:
			if r, ok := cs.rooms[id]; ok {
				cs.unloadRoom(id)
				r.exit <- exitReq{}
				<-r.done
			}
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for id, r := range cs.rooms {
				cs.log.Printf("shutting down room %d", id)
				r.exit <- exitReq{}
				<-r.done
				cs.stats.Decr("NumActiveRooms")
			}
			cs.rooms = make(map[int]*Room)

			if req.done != nil {
				close(req.done)
			}
			return
		}
	}
}

func (cs *ChatServer) handleJoin(ev *ClientEvent) {
	roomId := ev.Join.RoomId
	if room, ok := cs.rooms[roomId]; ok {
		select {
		case room.joinChan <- ev:
		default:
			cs.log.Printf("joinChan full on room %d", roomId)
			ev.client.queueEvent(errorEvent(ev.Id, "service_unavailable", "server busy"))
		}
		return
	}

	// the room channel is loaded lazily on first join; access is checked by
	// the use-case before anything is broadcast
	dbRoom, err := cs.roomSvc.Get(ev.client.user.Id, roomId)
	if err != nil {
		ev.client.queueEvent(errorEventFrom(ev.Id, err))
		return
	}

	room := cs.loadRoom(dbRoom)
	room.joinChan <- ev
	go room.start()
}

func (cs *ChatServer) loadRoom(dbRoom types.Room) *Room {
	room := &Room{
		id:            dbRoom.Id,
		externalId:    dbRoom.ExternalId,
		name:          dbRoom.Name,
		cs:            cs,
		log:           cs.log,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		joinChan:      make(chan *ClientEvent, 256),
		leaveChan:     make(chan *ClientEvent, 256),
		eventChan:     make(chan *ClientEvent, 256),
		bcastChan:     make(chan *ServerEvent, 256),
		typingTimers:  make(map[int]*time.Timer),
		typingExpired: make(chan int, 16),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
	room.setParticipants(dbRoom.Participants)

	cs.rooms[room.id] = room
	cs.stats.Incr("NumActiveRooms")

	return room
}

func (cs *ChatServer) unloadRoom(roomId int) {
	if _, ok := cs.rooms[roomId]; ok {
		cs.log.Printf("unloading room %d", roomId)
		delete(cs.rooms, roomId)
		cs.stats.Decr("NumActiveRooms")
	}
}

func (cs *ChatServer) removeRoom(req *unloadReq) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		return
	}

	cs.unloadRoom(req.roomId)
	done := make(chan struct{})
	r.exit <- exitReq{deleted: req.deleted, done: done}
	<-done
}

func (cs *ChatServer) registerClient(c *Client) {
	cs.log.Printf("adding connection from %q", c.user.Username)

	first := cs.registry.Add(c)
	cs.stats.Incr("NumConnections")
	if !first {
		return
	}
	cs.stats.Incr("NumOnlineUsers")

	// first socket for this user: announce presence in every loaded room
	// they participate in
	for _, room := range cs.rooms {
		if room.isParticipant(c.user.Id) {
			cs.roomBroadcastLocked(room, &ServerEvent{
				Timestamp:  Now(),
				UserOnline: &UserPresence{UserId: c.user.Id, Username: c.user.Username},
				SkipClient: c,
			})
		}
	}
}

func (cs *ChatServer) deRegisterClient(c *Client) {
	cs.log.Printf("removing connection from %q", c.user.Username)

	last := cs.registry.Remove(c)
	cs.stats.Decr("NumConnections")
	if !last {
		return
	}
	cs.stats.Decr("NumOnlineUsers")

	for _, room := range cs.rooms {
		if room.isParticipant(c.user.Id) {
			cs.roomBroadcastLocked(room, &ServerEvent{
				Timestamp:   Now(),
				UserOffline: &UserPresence{UserId: c.user.Id, Username: c.user.Username},
				SkipClient:  c,
			})
		}
	}
}

func (cs *ChatServer) roomBroadcastLocked(room *Room, ev *ServerEvent) {
	select {
	case room.bcastChan <- ev:
	default:
		cs.log.Printf("bcastChan full for room %d", room.id)
	}
}

func (cs *ChatServer) deliverToUser(ev *ServerEvent) {
	for _, c := range cs.registry.ClientsFor(ev.TargetUserId) {
		c.queueEvent(ev)
	}
}

// NotifyUser delivers an event to every connected socket of one user. This
// is the targeted primitive for notifications the recipient must see even
// without the affected room open: invitations, room deletion and updates,
// membership removals.
func (cs *ChatServer) NotifyUser(userId int, ev *ServerEvent) {
	ev.TargetUserId = userId
	select {
	case cs.notifyChan <- ev:
	default:
		cs.log.Printf("notifyChan full, dropping event for user %d", userId)
	}
}

// BroadcastRoom fans an event out to the room's channel, if loaded.
func (cs *ChatServer) BroadcastRoom(roomId int, ev *ServerEvent) {
	select {
	case cs.roomBcastChan <- &roomBroadcast{roomId: roomId, ev: ev}:
	default:
		cs.log.Printf("roomBcastChan full, dropping event for room %d", roomId)
	}
}

// RoomDeleted tears down the room channel, notifying joined sockets first.
func (cs *ChatServer) RoomDeleted(roomId int) {
	cs.rmRoomChan <- &unloadReq{roomId: roomId, deleted: true}
}

// DisconnectUser force-closes every socket a user holds. Used by logout:
// refresh tokens stay cryptographically valid, so teardown of live
// connections is the enforcement we have.
func (cs *ChatServer) DisconnectUser(userId int) {
	for _, c := range cs.registry.ClientsFor(userId) {
		c.stopClient()
	}
}

func (cs *ChatServer) IsOnline(userId int) bool {
	return cs.registry.IsOnline(userId)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")

	for _, c := range cs.registry.All() {
		c.stopClient()
	}

	done := make(chan struct{})
	select {
	case cs.stop <- stopReq{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
