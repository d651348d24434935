package server

import (
	"net/http"
	"time"

	"taskchat/internal/types"
)

// ClientEvent is the closed set of inbound socket events. Exactly one of the
// payload pointers is set; the client read pump dispatches on which.
type ClientEvent struct {
	Id     int          `json:"id,omitempty"`
	Join   *JoinRoom    `json:"join-room,omitempty"`
	Leave  *LeaveRoom   `json:"leave-room,omitempty"`
	Send   *SendMessage `json:"send-message,omitempty"`
	Typing *Typing      `json:"typing,omitempty"`

	client *Client
	// disconnect marks a leave synthesized by connection teardown rather
	// than an explicit leave-room from the user
	disconnect bool
}

type JoinRoom struct {
	RoomId int `json:"room_id"`
}

type LeaveRoom struct {
	RoomId int `json:"room_id"`
}

type SendMessage struct {
	RoomId        int    `json:"room_id"`
	CorrelationId string `json:"correlation_id,omitempty"`
	Content       string `json:"content"`
}

type Typing struct {
	RoomId   int  `json:"room_id"`
	IsTyping bool `json:"is_typing"`
}

// ServerEvent is the closed set of outbound socket events, one field per
// event name. TargetUserId routes an event to every socket of one user
// instead of a room channel; SkipClient excludes the triggering socket from
// a room broadcast.
type ServerEvent struct {
	Timestamp time.Time `json:"timestamp"`

	Response            *Response      `json:"response,omitempty"`
	NewMessage          *types.Message `json:"new-message,omitempty"`
	MessageUpdated      *types.Message `json:"message-updated,omitempty"`
	MessageDeleted      *MessageRef    `json:"message-deleted,omitempty"`
	UserJoined          *RoomPresence  `json:"user-joined,omitempty"`
	UserLeft            *RoomPresence  `json:"user-left,omitempty"`
	UserTyping          *TypingNotice  `json:"user-typing,omitempty"`
	UserOnline          *UserPresence  `json:"user-online,omitempty"`
	UserOffline         *UserPresence  `json:"user-offline,omitempty"`
	UserOfflineInRoom   *RoomPresence  `json:"user-offline-in-room,omitempty"`
	RoomDeleted         *RoomRef       `json:"room-deleted,omitempty"`
	RoomUpdated         *types.Room    `json:"room-updated,omitempty"`
	RoomListUpdated     *RoomRef       `json:"room-list-updated,omitempty"`
	MemberRemoved       *Membership    `json:"member-removed,omitempty"`
	UserRemovedFromRoom *RoomRef       `json:"user-removed-from-room,omitempty"`
	RoomInvitation      *types.Room    `json:"room-invitation,omitempty"`
	Error               *EventError    `json:"error,omitempty"`

	TargetUserId int     `json:"-"`
	SkipClient   *Client `json:"-"`
}

// Response acknowledges an inbound event by its id.
type Response struct {
	Id   int         `json:"id,omitempty"`
	Code int         `json:"code"`
	Room *types.Room `json:"room,omitempty"`
}

type RoomPresence struct {
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
}

type TypingNotice struct {
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

type UserPresence struct {
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
}

type RoomRef struct {
	RoomId int    `json:"room_id"`
	Name   string `json:"name,omitempty"`
}

type MessageRef struct {
	RoomId    int `json:"room_id"`
	MessageId int `json:"message_id"`
}

type Membership struct {
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
}

type EventError struct {
	Id      int    `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handshake rejection codes. Expired tokens are distinguished so the client
// can attempt a refresh before reconnecting.
const (
	CodeTokenExpired = "AuthenticationTokenExpired"
	CodeTokenInvalid = "InvalidAuthenticationToken"
)

func okResponse(id int, room *types.Room) *ServerEvent {
	return &ServerEvent{
		Timestamp: Now(),
		Response:  &Response{Id: id, Code: http.StatusOK, Room: room},
	}
}

func errorEvent(id int, code, message string) *ServerEvent {
	return &ServerEvent{
		Timestamp: Now(),
		Error:     &EventError{Id: id, Code: code, Message: message},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
