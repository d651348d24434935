package api

import (
	"net/http"
	"strconv"

	"taskchat/internal/server"
	"taskchat/internal/types"
)

// notifyRoomList tells one user, on every socket they hold, that the shape
// of their room list changed and a refetch is due.
func (s *App) notifyRoomList(userId int, room types.Room) {
	s.cs.NotifyUser(userId, &server.ServerEvent{
		Timestamp:       server.Now(),
		RoomListUpdated: &server.RoomRef{RoomId: room.Id, Name: room.Name},
	})
}

const defaultMessagePageSize = 50

type createRoomRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	AvatarUrl string `json:"avatar_url" validate:"omitempty,url"`
}

type updateRoomRequest struct {
	RoomId    int    `json:"room_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=100"`
	AvatarUrl string `json:"avatar_url" validate:"omitempty,url"`
}

type roomRequest struct {
	RoomId int `json:"room_id" validate:"required"`
}

type inviteRequest struct {
	RoomId int `json:"room_id" validate:"required"`
	UserId int `json:"user_id" validate:"required"`
}

type removeMemberRequest struct {
	RoomId int `json:"room_id" validate:"required"`
	UserId int `json:"user_id" validate:"required"`
}

type updateMessageRequest struct {
	MessageId int    `json:"message_id" validate:"required"`
	Content   string `json:"content" validate:"required,max=2000"`
}

type messageRequest struct {
	MessageId int `json:"message_id" validate:"required"`
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req createRoomRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.Create(userId, req.Name, req.AvatarUrl)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.notifyRoomList(userId, room)
	s.writeJson(w, http.StatusCreated, room)
}

func (s *App) getRooms(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if externalId := r.URL.Query().Get("external_id"); externalId != "" {
		dbRoom, err := s.db.GetRoomByExternalId(externalId)
		if err != nil {
			s.writeError(w, err)
			return
		}

		room, err := s.rooms.Get(userId, dbRoom.Id)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJson(w, http.StatusOK, room)
		return
	}

	rooms, err := s.rooms.ListForUser(userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *App) updateRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req updateRoomRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.Update(userId, req.RoomId, req.Name, req.AvatarUrl)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// every participant learns of the rename, whether or not they have the
	// room open
	for _, p := range room.Participants {
		s.cs.NotifyUser(p.Id, &server.ServerEvent{
			Timestamp:   server.Now(),
			RoomUpdated: &room,
		})
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req roomRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.Delete(userId, req.RoomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// tear down the live room channel first, then notify the participant
	// list the room had at deletion time
	s.cs.RoomDeleted(room.Id)
	for _, p := range room.Participants {
		s.cs.NotifyUser(p.Id, &server.ServerEvent{
			Timestamp:   server.Now(),
			RoomDeleted: &server.RoomRef{RoomId: room.Id, Name: room.Name},
		})
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req roomRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.Join(userId, req.RoomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastRoom(room.Id, &server.ServerEvent{
		Timestamp:  server.Now(),
		UserJoined: &server.RoomPresence{RoomId: room.Id, UserId: userId, Username: usernameIn(room, userId)},
	})
	s.notifyRoomList(userId, room)

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req roomRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.Leave(userId, req.RoomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastRoom(room.Id, &server.ServerEvent{
		Timestamp: server.Now(),
		UserLeft:  &server.RoomPresence{RoomId: room.Id, UserId: userId},
	})
	s.notifyRoomList(userId, room)

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) inviteToRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req inviteRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.Invite(userId, req.RoomId, req.UserId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// the invitee gets a targeted notification on every socket they hold
	s.cs.NotifyUser(req.UserId, &server.ServerEvent{
		Timestamp:      server.Now(),
		RoomInvitation: &room,
	})
	s.cs.BroadcastRoom(room.Id, &server.ServerEvent{
		Timestamp:  server.Now(),
		UserJoined: &server.RoomPresence{RoomId: room.Id, UserId: req.UserId, Username: usernameIn(room, req.UserId)},
	})
	s.notifyRoomList(req.UserId, room)

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) removeMember(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req removeMemberRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	room, err := s.rooms.RemoveParticipant(userId, req.RoomId, req.UserId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.NotifyUser(req.UserId, &server.ServerEvent{
		Timestamp:           server.Now(),
		UserRemovedFromRoom: &server.RoomRef{RoomId: room.Id, Name: room.Name},
	})
	s.cs.BroadcastRoom(room.Id, &server.ServerEvent{
		Timestamp:     server.Now(),
		MemberRemoved: &server.Membership{RoomId: room.Id, UserId: req.UserId},
	})
	s.notifyRoomList(req.UserId, room)

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	roomId, err := strconv.Atoi(r.URL.Query().Get("room_id"))
	if err != nil {
		s.writeError(w, NewBadRequestError("room_id is required"))
		return
	}
	before, _ := strconv.Atoi(r.URL.Query().Get("before"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = defaultMessagePageSize
	}

	msgs, err := s.messages.List(userId, roomId, before, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *App) updateMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req updateMessageRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.messages.Edit(userId, req.MessageId, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastRoom(msg.RoomId, &server.ServerEvent{
		Timestamp:      server.Now(),
		MessageUpdated: &msg,
	})

	s.writeJson(w, http.StatusOK, msg)
}

func (s *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req messageRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.messages.Delete(userId, req.MessageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastRoom(msg.RoomId, &server.ServerEvent{
		Timestamp:      server.Now(),
		MessageDeleted: &server.MessageRef{RoomId: msg.RoomId, MessageId: msg.Id},
	})

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) restoreMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req messageRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.messages.Restore(userId, req.MessageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// a restored message reappears as an update, not as new traffic
	s.cs.BroadcastRoom(msg.RoomId, &server.ServerEvent{
		Timestamp:      server.Now(),
		MessageUpdated: &msg,
	})

	s.writeJson(w, http.StatusOK, msg)
}

func usernameIn(room types.Room, userId int) string {
	for _, p := range room.Participants {
		if p.Id == userId {
			return p.Username
		}
	}

	return ""
}
