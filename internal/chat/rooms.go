package chat

import (
	"fmt"
	"log"

	"github.com/teris-io/shortid"
	"taskchat/internal/database"
	"taskchat/internal/domain"
	"taskchat/internal/types"
)

// RoomService holds the room use-cases. It never talks to the socket layer:
// every operation returns a result value and the caller decides what to
// broadcast, keeping the gateway dependency one-directional.
type RoomService struct {
	log *log.Logger
	db  database.Repository
}

func NewRoomService(logger *log.Logger, db database.Repository) *RoomService {
	return &RoomService{log: logger, db: db}
}

func (s *RoomService) Create(authorId int, name, avatarUrl string) (types.Room, error) {
	externalId, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	// run domain validation before touching storage
	if _, err := domain.NewRoom(0, externalId, name, avatarUrl, authorId, now()); err != nil {
		return types.Room{}, err
	}

	dbRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		ExternalId: externalId,
		Name:       name,
		AvatarUrl:  avatarUrl,
		AuthorId:   authorId,
	})
	if err != nil {
		return types.Room{}, err
	}

	room := roomToType(dbRoom)
	return room, nil
}

func (s *RoomService) Get(userId, roomId int) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	if !room.aggregate.CanUserAccess(userId) {
		return types.Room{}, domain.NewAuthorizationError("user %d is not a participant of room %d", userId, roomId)
	}

	return room.toType(), nil
}

func (s *RoomService) ListForUser(userId int) ([]types.Room, error) {
	dbRooms, err := s.db.ListRoomsForAccount(userId)
	if err != nil {
		return nil, err
	}

	rooms := make([]types.Room, len(dbRooms))
	for i, r := range dbRooms {
		rooms[i] = roomToType(r)
	}

	return rooms, nil
}

func (s *RoomService) Update(userId, roomId int, name, avatarUrl string) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	if !room.aggregate.CanUserModify(userId) {
		return types.Room{}, domain.NewAuthorizationError("only the author can update a room")
	}
	if err := room.aggregate.Update(name, avatarUrl, now()); err != nil {
		return types.Room{}, err
	}

	updated, err := s.db.UpdateRoom(database.UpdateRoomParams{
		RoomId:    roomId,
		Name:      room.aggregate.Name,
		AvatarUrl: room.aggregate.AvatarUrl,
	})
	if err != nil {
		return types.Room{}, err
	}

	out := roomToType(updated)
	out.Participants = room.participants
	return out, nil
}

// Delete removes a room and its messages. The cascade is sequential and
// deliberately non-transactional: messages go first, and if that fails the
// room row survives so the delete can be retried. The contract is only that
// no messages dangle after a successful delete. The participant list the
// room had at deletion time is returned so the caller can notify every
// member, whether or not they have the room open.
func (s *RoomService) Delete(userId, roomId int) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	if !room.aggregate.CanUserModify(userId) {
		return types.Room{}, domain.NewAuthorizationError("only the author can delete a room")
	}

	if err := s.db.DeleteRoomMessages(roomId); err != nil {
		return types.Room{}, fmt.Errorf("delete room messages: %w", err)
	}
	if err := s.db.DeleteRoom(roomId); err != nil {
		return types.Room{}, fmt.Errorf("delete room: %w", err)
	}

	s.log.Printf("room %d deleted by user %d", roomId, userId)
	return room.toType(), nil
}

// Join subscribes a user to a room.
func (s *RoomService) Join(userId, roomId int) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	room.aggregate.AddParticipant(userId, now())
	if err := s.db.AddParticipant(roomId, userId); err != nil {
		return types.Room{}, fmt.Errorf("add participant: %w", err)
	}

	return s.Get(userId, roomId)
}

// Leave removes the calling user from a room. The author can never leave
// their own room.
func (s *RoomService) Leave(userId, roomId int) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	if err := room.aggregate.RemoveParticipant(userId, now()); err != nil {
		return types.Room{}, err
	}
	if err := s.db.RemoveParticipant(roomId, userId); err != nil {
		return types.Room{}, fmt.Errorf("remove participant: %w", err)
	}

	return room.toType(), nil
}

// Invite adds another user to a room on behalf of an existing participant.
func (s *RoomService) Invite(inviterId, roomId, inviteeId int) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	if !room.aggregate.CanUserAccess(inviterId) {
		return types.Room{}, domain.NewAuthorizationError("only participants can invite users")
	}

	if _, err := s.db.GetAccountById(inviteeId); err != nil {
		return types.Room{}, fmt.Errorf("invitee: %w", err)
	}

	room.aggregate.AddParticipant(inviteeId, now())
	if err := s.db.AddParticipant(roomId, inviteeId); err != nil {
		return types.Room{}, fmt.Errorf("add participant: %w", err)
	}

	return s.Get(inviterId, roomId)
}

// RemoveParticipant kicks a user out of a room. Author-only, and the author
// themselves can never be removed.
func (s *RoomService) RemoveParticipant(authorId, roomId, targetId int) (types.Room, error) {
	room, err := s.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	if !room.aggregate.CanUserModify(authorId) {
		return types.Room{}, domain.NewAuthorizationError("only the author can remove participants")
	}
	if err := room.aggregate.RemoveParticipant(targetId, now()); err != nil {
		return types.Room{}, err
	}
	if err := s.db.RemoveParticipant(roomId, targetId); err != nil {
		return types.Room{}, fmt.Errorf("remove participant: %w", err)
	}

	return room.toType(), nil
}

// loadedRoom pairs the domain aggregate with the participant DTOs so access
// checks and response shaping use one consistent snapshot.
type loadedRoom struct {
	aggregate    *domain.Room
	participants []types.User
}

func (lr *loadedRoom) toType() types.Room {
	return types.Room{
		Id:            lr.aggregate.Id,
		ExternalId:    lr.aggregate.ExternalId,
		Name:          lr.aggregate.Name,
		AvatarUrl:     lr.aggregate.AvatarUrl,
		AuthorId:      lr.aggregate.AuthorId,
		LastMessageId: lr.aggregate.LastMessageId,
		Participants:  lr.participants,
		CreatedAt:     lr.aggregate.CreatedAt,
		UpdatedAt:     lr.aggregate.UpdatedAt,
	}
}

func (s *RoomService) loadRoom(roomId int) (*loadedRoom, error) {
	dbRoom, err := s.db.GetRoomWithParticipants(roomId)
	if err != nil {
		return nil, err
	}

	participantIds := make([]int, len(dbRoom.Participants))
	participants := make([]types.User, len(dbRoom.Participants))
	for i, p := range dbRoom.Participants {
		participantIds[i] = p.Id
		participants[i] = userToType(p)
	}

	return &loadedRoom{
		aggregate: domain.RestoreRoom(
			dbRoom.Id,
			dbRoom.ExternalId,
			dbRoom.Name,
			dbRoom.AvatarUrl,
			dbRoom.AuthorId,
			dbRoom.LastMessageId,
			participantIds,
			dbRoom.CreatedAt,
			dbRoom.UpdatedAt,
		),
		participants: participants,
	}, nil
}
