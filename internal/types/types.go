package types

import (
	"time"
)

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Password  string    `json:"-"`
	IsOnline  bool      `json:"is_online,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id            int       `json:"id"`
	ExternalId    string    `json:"external_id"`
	Name          string    `json:"name"`
	AvatarUrl     string    `json:"avatar_url,omitempty"`
	AuthorId      int       `json:"author_id"`
	Participants  []User    `json:"participants,omitempty"`
	LastMessageId int       `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id            int       `json:"id"`
	CorrelationId string    `json:"correlation_id,omitempty"`
	RoomId        int       `json:"room_id"`
	AuthorId      int       `json:"author_id"`
	Username      string    `json:"username,omitempty"`
	Content       string    `json:"content"`
	IsDeleted     bool      `json:"is_deleted,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TokenPair is issued atomically on login, register and refresh. ExpiresIn is
// the access token lifetime in seconds as computed from the signed claims.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
