package domain

import (
	"time"
)

const maxMessageLength = 2000

// Message is the chat message aggregate. Deletion is soft: a deleted message
// stays in storage and is filtered from visibility, so it can be restored by
// its author. Edits are only legal while the message is active.
type Message struct {
	Id            int
	CorrelationId string
	RoomId        int
	AuthorId      int
	Content       string
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewMessage(correlationId string, roomId, authorId int, content string, now time.Time) (*Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	return &Message{
		CorrelationId: correlationId,
		RoomId:        roomId,
		AuthorId:      authorId,
		Content:       content,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (m *Message) IsAuthor(userId int) bool {
	return m.AuthorId == userId
}

func (m *Message) IsVisible() bool {
	return !m.IsDeleted
}

func (m *Message) UpdateContent(userId int, content string, now time.Time) error {
	if !m.IsAuthor(userId) {
		return NewAuthorizationError("only the author can edit a message")
	}
	if m.IsDeleted {
		return NewValidationError("message", "cannot edit a deleted message")
	}
	if err := validateContent(content); err != nil {
		return err
	}

	m.Content = content
	m.UpdatedAt = now
	return nil
}

func (m *Message) Delete(userId int, now time.Time) error {
	if !m.IsAuthor(userId) {
		return NewAuthorizationError("only the author can delete a message")
	}
	if m.IsDeleted {
		return NewValidationError("message", "already deleted")
	}

	m.IsDeleted = true
	m.UpdatedAt = now
	return nil
}

func (m *Message) Restore(userId int, now time.Time) error {
	if !m.IsAuthor(userId) {
		return NewAuthorizationError("only the author can restore a message")
	}
	if !m.IsDeleted {
		return NewValidationError("message", "not deleted")
	}

	m.IsDeleted = false
	m.UpdatedAt = now
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return NewValidationError("content", "cannot be empty")
	}
	if len(content) > maxMessageLength {
		return NewValidationError("content", "cannot exceed %d characters", maxMessageLength)
	}

	return nil
}
