package chat

import (
	"fmt"
	"log"
	"time"

	"taskchat/internal/database"
	"taskchat/internal/domain"
	"taskchat/internal/types"
)

type MessageService struct {
	log *log.Logger
	db  database.Repository
}

func NewMessageService(logger *log.Logger, db database.Repository) *MessageService {
	return &MessageService{log: logger, db: db}
}

// Send validates and persists a new message on behalf of userId. The
// correlation id is client-generated and echoed back so the sender can
// reconcile its optimistic copy.
func (s *MessageService) Send(userId, roomId int, correlationId, content string) (types.Message, error) {
	if !s.db.ParticipantExists(roomId, userId) {
		return types.Message{}, domain.NewAuthorizationError("user %d is not a participant of room %d", userId, roomId)
	}

	msg, err := domain.NewMessage(correlationId, roomId, userId, content, now())
	if err != nil {
		return types.Message{}, err
	}

	created, err := s.db.CreateMessage(database.CreateMessageParams{
		CorrelationId: msg.CorrelationId,
		RoomId:        msg.RoomId,
		AuthorId:      msg.AuthorId,
		Content:       msg.Content,
		CreatedAt:     msg.CreatedAt,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	if err := s.db.SetRoomLastMessage(roomId, created.Id); err != nil {
		// the message is saved; losing the pointer update is tolerable
		s.log.Printf("set last message for room %d: %v", roomId, err)
	}

	return messageToType(created), nil
}

func (s *MessageService) List(userId, roomId, before, limit int) ([]types.Message, error) {
	if !s.db.ParticipantExists(roomId, userId) {
		return nil, domain.NewAuthorizationError("user %d is not a participant of room %d", userId, roomId)
	}

	dbMsgs, err := s.db.ListMessages(roomId, before, limit)
	if err != nil {
		return nil, err
	}

	msgs := make([]types.Message, len(dbMsgs))
	for i, m := range dbMsgs {
		msgs[i] = messageToType(m)
	}

	return msgs, nil
}

func (s *MessageService) Edit(userId, messageId int, content string) (types.Message, error) {
	return s.mutate(userId, messageId, func(m *domain.Message, now time.Time) error {
		return m.UpdateContent(userId, content, now)
	})
}

// Delete soft-deletes a message. The row survives so the author can restore
// it later; visibility filtering hides it everywhere else.
func (s *MessageService) Delete(userId, messageId int) (types.Message, error) {
	return s.mutate(userId, messageId, func(m *domain.Message, now time.Time) error {
		return m.Delete(userId, now)
	})
}

func (s *MessageService) Restore(userId, messageId int) (types.Message, error) {
	return s.mutate(userId, messageId, func(m *domain.Message, now time.Time) error {
		return m.Restore(userId, now)
	})
}

func (s *MessageService) mutate(userId, messageId int, op func(*domain.Message, time.Time) error) (types.Message, error) {
	dbMsg, err := s.db.GetMessageById(messageId)
	if err != nil {
		return types.Message{}, err
	}

	msg := &domain.Message{
		Id:            dbMsg.Id,
		CorrelationId: dbMsg.CorrelationId,
		RoomId:        dbMsg.RoomId,
		AuthorId:      dbMsg.AuthorId,
		Content:       dbMsg.Content,
		IsDeleted:     dbMsg.IsDeleted,
		CreatedAt:     dbMsg.CreatedAt,
		UpdatedAt:     dbMsg.UpdatedAt,
	}

	if err := op(msg, now()); err != nil {
		return types.Message{}, err
	}

	updated, err := s.db.UpdateMessage(database.UpdateMessageParams{
		MessageId: msg.Id,
		Content:   msg.Content,
		IsDeleted: msg.IsDeleted,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	out := messageToType(updated)
	out.Username = dbMsg.Username
	return out, nil
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func userToType(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Email:     u.Email,
		IsOnline:  u.IsOnline,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func roomToType(r database.Room) types.Room {
	room := types.Room{
		Id:            r.Id,
		ExternalId:    r.ExternalId,
		Name:          r.Name,
		AvatarUrl:     r.AvatarUrl,
		AuthorId:      r.AuthorId,
		LastMessageId: r.LastMessageId,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, p := range r.Participants {
		room.Participants = append(room.Participants, userToType(p))
	}

	return room
}

func messageToType(m database.Message) types.Message {
	return types.Message{
		Id:            m.Id,
		CorrelationId: m.CorrelationId,
		RoomId:        m.RoomId,
		AuthorId:      m.AuthorId,
		Username:      m.Username,
		Content:       m.Content,
		IsDeleted:     m.IsDeleted,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
