package client

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"taskchat/internal/server"
	"taskchat/internal/types"
)

// SocketClient is the live connection to the chat gateway. Inbound events
// feed the ChatStore; outbound events are the tagged unions the gateway
// dispatches on.
type SocketClient struct {
	conn  *websocket.Conn
	store *ChatStore
	user  types.User
	log   *log.Logger

	writeMu sync.Mutex
	nextId  int

	typingMu     sync.Mutex
	typingTimers map[int]*time.Timer
}

// DialSocket authenticates the handshake with the stored access token.
func DialSocket(wsUrl string, session Session, store *ChatStore, logger *log.Logger) (*SocketClient, error) {
	if session.Tokens == nil {
		return nil, ErrSessionExpired
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.Tokens.AccessToken)

	conn, resp, err := websocket.DefaultDialer.Dial(wsUrl, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: handshake rejected", ErrSessionExpired)
		}
		return nil, fmt.Errorf("dial %s: %w", wsUrl, err)
	}

	return &SocketClient{
		conn:         conn,
		store:        store,
		user:         session.User,
		log:          logger,
		typingTimers: make(map[int]*time.Timer),
	}, nil
}

func (sc *SocketClient) Close() error {
	sc.typingMu.Lock()
	for id, timer := range sc.typingTimers {
		timer.Stop()
		delete(sc.typingTimers, id)
	}
	sc.typingMu.Unlock()

	return sc.conn.Close()
}

// Listen reads events until the connection drops, routing each into the
// store.
func (sc *SocketClient) Listen() error {
	for {
		var ev server.ServerEvent
		if err := sc.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("read event: %w", err)
			}
			return nil
		}

		sc.handle(&ev)
	}
}

func (sc *SocketClient) handle(ev *server.ServerEvent) {
	switch {
	case ev.NewMessage != nil:
		sc.store.AddMessage(*ev.NewMessage)
	case ev.MessageUpdated != nil:
		sc.store.UpdateMessage(*ev.MessageUpdated)
	case ev.MessageDeleted != nil:
		sc.store.RemoveMessage(ev.MessageDeleted.RoomId, ev.MessageDeleted.MessageId)
	case ev.UserTyping != nil:
		n := ev.UserTyping
		sc.store.SetTyping(n.RoomId, n.UserId, n.Username, n.IsTyping)
	case ev.RoomDeleted != nil:
		sc.store.RemoveRoom(ev.RoomDeleted.RoomId)
	case ev.UserRemovedFromRoom != nil:
		sc.store.RemoveRoom(ev.UserRemovedFromRoom.RoomId)
	case ev.Error != nil:
		sc.log.Printf("server error %q: %s", ev.Error.Code, ev.Error.Message)
	}
}

func (sc *SocketClient) JoinRoom(roomId int) error {
	return sc.writeEvent(&server.ClientEvent{
		Id:   sc.eventId(),
		Join: &server.JoinRoom{RoomId: roomId},
	})
}

func (sc *SocketClient) LeaveRoom(roomId int) error {
	return sc.writeEvent(&server.ClientEvent{
		Id:    sc.eventId(),
		Leave: &server.LeaveRoom{RoomId: roomId},
	})
}

// SendMessage echoes the message locally, then ships it with the correlation
// id the local copy carries. The server's broadcast reconciles the two.
func (sc *SocketClient) SendMessage(roomId int, content string) error {
	optimistic := sc.store.SendOptimistic(roomId, sc.user.Id, sc.user.Username, content)

	err := sc.writeEvent(&server.ClientEvent{
		Id: sc.eventId(),
		Send: &server.SendMessage{
			RoomId:        roomId,
			CorrelationId: optimistic.CorrelationId,
			Content:       content,
		},
	})
	if err != nil {
		sc.store.MarkFailed(roomId, optimistic.CorrelationId)
	}

	return err
}

// SetTyping ships a typing indicator. A true indicator arms a timer that
// sends the stop on its own after the debounce window; every keystroke
// re-arms the timer instead of stacking a new one, and an explicit stop
// cancels it.
func (sc *SocketClient) SetTyping(roomId int, isTyping bool) error {
	sc.typingMu.Lock()
	if isTyping {
		if timer, ok := sc.typingTimers[roomId]; ok {
			timer.Reset(typingDebounce)
		} else {
			sc.typingTimers[roomId] = time.AfterFunc(typingDebounce, func() {
				if err := sc.SetTyping(roomId, false); err != nil {
					sc.log.Printf("typing stop: %v", err)
				}
			})
		}
	} else if timer, ok := sc.typingTimers[roomId]; ok {
		timer.Stop()
		delete(sc.typingTimers, roomId)
	}
	sc.typingMu.Unlock()

	return sc.writeEvent(&server.ClientEvent{
		Typing: &server.Typing{RoomId: roomId, IsTyping: isTyping},
	})
}

func (sc *SocketClient) writeEvent(ev *server.ClientEvent) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	return sc.conn.WriteJSON(ev)
}

func (sc *SocketClient) eventId() int {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	sc.nextId++
	return sc.nextId
}
