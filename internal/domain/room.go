package domain

import (
	"sort"
	"time"
)

const (
	maxRoomNameLength = 100
)

// Room is the chat room aggregate. The author is pinned to the participant
// set for the lifetime of the room: removal of the author always fails with
// an AuthorizationError, never silently.
type Room struct {
	Id            int
	ExternalId    string
	Name          string
	AvatarUrl     string
	AuthorId      int
	LastMessageId int
	CreatedAt     time.Time
	UpdatedAt     time.Time

	participants map[int]struct{}
}

func NewRoom(id int, externalId, name, avatarUrl string, authorId int, now time.Time) (*Room, error) {
	if err := validateRoomName(name); err != nil {
		return nil, err
	}

	r := &Room{
		Id:           id,
		ExternalId:   externalId,
		Name:         name,
		AvatarUrl:    avatarUrl,
		AuthorId:     authorId,
		CreatedAt:    now,
		UpdatedAt:    now,
		participants: make(map[int]struct{}),
	}

	// the author is always a participant
	r.participants[authorId] = struct{}{}
	return r, nil
}

// RestoreRoom rebuilds the aggregate from persisted state. The author is
// added to the participant set even if the stored list omits them.
func RestoreRoom(id int, externalId, name, avatarUrl string, authorId, lastMessageId int, participantIds []int, createdAt, updatedAt time.Time) *Room {
	r := &Room{
		Id:            id,
		ExternalId:    externalId,
		Name:          name,
		AvatarUrl:     avatarUrl,
		AuthorId:      authorId,
		LastMessageId: lastMessageId,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		participants:  make(map[int]struct{}, len(participantIds)+1),
	}

	for _, id := range participantIds {
		r.participants[id] = struct{}{}
	}
	r.participants[authorId] = struct{}{}

	return r
}

func (r *Room) IsAuthor(userId int) bool {
	return r.AuthorId == userId
}

func (r *Room) IsParticipant(userId int) bool {
	_, ok := r.participants[userId]
	return ok
}

func (r *Room) CanUserAccess(userId int) bool {
	return r.IsParticipant(userId)
}

func (r *Room) CanUserModify(userId int) bool {
	return r.IsAuthor(userId)
}

// AddParticipant joins a user to the room. Joining is idempotent: adding an
// existing participant is a no-op so the set never holds duplicates.
func (r *Room) AddParticipant(userId int, now time.Time) {
	if r.IsParticipant(userId) {
		return
	}

	r.participants[userId] = struct{}{}
	r.UpdatedAt = now
}

// RemoveParticipant takes a user out of the room. The author can never be
// removed; a non-member removal reports ErrNotFound.
func (r *Room) RemoveParticipant(userId int, now time.Time) error {
	if r.IsAuthor(userId) {
		return NewAuthorizationError("the author cannot be removed from their own room")
	}
	if !r.IsParticipant(userId) {
		return ErrNotFound
	}

	delete(r.participants, userId)
	r.UpdatedAt = now
	return nil
}

func (r *Room) Update(name, avatarUrl string, now time.Time) error {
	if err := validateRoomName(name); err != nil {
		return err
	}

	r.Name = name
	r.AvatarUrl = avatarUrl
	r.UpdatedAt = now
	return nil
}

func (r *Room) SetLastMessage(messageId int, now time.Time) {
	r.LastMessageId = messageId
	r.UpdatedAt = now
}

// ParticipantIds returns the participant set in ascending order.
func (r *Room) ParticipantIds() []int {
	ids := make([]int, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}

func (r *Room) NumParticipants() int {
	return len(r.participants)
}

func validateRoomName(name string) error {
	if name == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if len(name) > maxRoomNameLength {
		return NewValidationError("name", "cannot exceed %d characters", maxRoomNameLength)
	}

	return nil
}
