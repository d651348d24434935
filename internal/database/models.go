package database

import "time"

type User struct {
	Id           int
	Username     string
	Email        string
	PasswordHash string
	IsOnline     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id            int
	ExternalId    string
	Name          string
	AvatarUrl     string
	AuthorId      int
	LastMessageId int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Participants  []User
}

type Message struct {
	Id            int
	CorrelationId string
	RoomId        int
	AuthorId      int
	Username      string
	Content       string
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreateAccountParams struct {
	Username     string
	Email        string
	PasswordHash string
}

type CreateRoomParams struct {
	ExternalId string
	Name       string
	AvatarUrl  string
	AuthorId   int
}

type UpdateRoomParams struct {
	RoomId    int
	Name      string
	AvatarUrl string
}

type CreateMessageParams struct {
	CorrelationId string
	RoomId        int
	AuthorId      int
	Content       string
	CreatedAt     time.Time
}

type UpdateMessageParams struct {
	MessageId int
	Content   string
	IsDeleted bool
}
