package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"taskchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one authenticated socket connection. The user identity is
// attached at handshake time and never re-derived from event payloads.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerEvent
	rooms      map[int]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerEvent, 256),
		rooms:      make(map[int]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.log.Printf("ws: write: %v", err)
		return false
	}

	return true
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(errorEvent(0, "validation_error", "invalid event format"))
			continue
		}

		ev.client = c
		c.dispatch(&ev)
	}
}

// dispatch routes an inbound event by its variant. Exactly one case runs;
// an event with no known variant set is rejected.
func (c *Client) dispatch(ev *ClientEvent) {
	switch {
	case ev.Join != nil:
		c.joinRoom(ev)
	case ev.Leave != nil:
		c.leaveRoom(ev)
	case ev.Send != nil:
		c.forwardToRoom(ev, ev.Send.RoomId)
	case ev.Typing != nil:
		c.forwardToRoom(ev, ev.Typing.RoomId)
	default:
		c.queueEvent(errorEvent(ev.Id, "validation_error", "unknown event"))
	}
}

func (c *Client) joinRoom(ev *ClientEvent) {
	select {
	case c.chatServer.joinChan <- ev:
	default:
		c.log.Println("joinChan full")
		c.queueEvent(errorEvent(ev.Id, "service_unavailable", "server busy"))
	}
}

func (c *Client) leaveRoom(ev *ClientEvent) {
	r := c.getRoom(ev.Leave.RoomId)
	if r == nil {
		c.queueEvent(errorEvent(ev.Id, "not_found", "room not joined"))
		return
	}

	select {
	case r.leaveChan <- ev:
	default:
		c.log.Printf("leaveChan full for room %d", r.id)
		c.queueEvent(errorEvent(ev.Id, "service_unavailable", "server busy"))
	}
}

func (c *Client) forwardToRoom(ev *ClientEvent, roomId int) {
	r := c.getRoom(roomId)
	if r == nil {
		c.queueEvent(errorEvent(ev.Id, "not_found", "room not joined"))
		return
	}

	select {
	case r.eventChan <- ev:
	default:
		c.log.Printf("eventChan full for room %d", r.id)
		c.queueEvent(errorEvent(ev.Id, "service_unavailable", "server busy"))
	}
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send buffer full for user %q, dropping event", c.user.Username)
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.leaveAllRooms()
	c.chatServer.deRegisterChan <- c
	c.stopClient()
}

// leaveAllRooms synthesizes disconnect-leaves for every room channel this
// connection had open.
func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	for _, room := range c.rooms {
		room.leaveChan <- &ClientEvent{
			Leave:      &LeaveRoom{RoomId: room.id},
			client:     c,
			disconnect: true,
		}
	}
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.id] = r
}

func (c *Client) delRoom(id int) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) getRoom(id int) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	return c.rooms[id]
}
