package database

// Repository is the persistence boundary for accounts, rooms, participants
// and messages. Implementations map storage-level failures to the domain
// errors: a missing row surfaces as domain.ErrNotFound and a unique-name
// collision as domain.ErrConflict.
type Repository interface {
	Ping() error
	Close() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	SetAccountOnline(accountId int, online bool) error

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(roomId int) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithParticipants(roomId int) (*Room, error)
	ListRoomsForAccount(accountId int) ([]Room, error)
	UpdateRoom(params UpdateRoomParams) (Room, error)
	DeleteRoom(roomId int) error
	SetRoomLastMessage(roomId, messageId int) error

	AddParticipant(roomId, accountId int) error
	RemoveParticipant(roomId, accountId int) error
	ParticipantExists(roomId, accountId int) bool
	ListParticipants(roomId int) ([]User, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(messageId int) (Message, error)
	UpdateMessage(params UpdateMessageParams) (Message, error)
	ListMessages(roomId, before, limit int) ([]Message, error)
	DeleteRoomMessages(roomId int) error
}
