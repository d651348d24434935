package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskchat/internal/domain"
)

func mapRowError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case isUniqueViolation(err):
		return domain.ErrConflict
	default:
		return err
	}
}

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	row := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.Email,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.Email,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, mapRowError(err)
}

func (db *PgRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, is_online, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.IsOnline,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, mapRowError(err)
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, is_online, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.IsOnline,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, mapRowError(err)
}

func (db *PgRepository) SetAccountOnline(accountId int, online bool) error {
	res, err := db.conn.Exec(
		"UPDATE accounts SET is_online = $2, updated_at = $3 WHERE id = $1",
		accountId,
		online,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (db *PgRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO rooms (external_id, name, avatar_url, author_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"RETURNING id, external_id, name, avatar_url, author_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.AvatarUrl,
		params.AuthorId,
		time.Now().UTC(),
	)

	var r Room
	if err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Name,
		&r.AvatarUrl,
		&r.AuthorId,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return Room{}, mapRowError(err)
	}

	// the author is a participant from the moment the room exists
	if _, err := tx.Exec(
		"INSERT INTO participants (room_id, account_id) VALUES ($1, $2)",
		r.Id,
		params.AuthorId,
	); err != nil {
		return Room{}, mapRowError(err)
	}

	if err := tx.Commit(); err != nil {
		return Room{}, err
	}

	return r, nil
}

const selectRoomColumns = "id, external_id, name, avatar_url, author_id, COALESCE(last_message_id, 0), created_at, updated_at"

func scanRoom(row *sql.Row) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Name,
		&r.AvatarUrl,
		&r.AuthorId,
		&r.LastMessageId,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	return r, mapRowError(err)
}

func (db *PgRepository) GetRoomById(roomId int) (Room, error) {
	return scanRoom(db.conn.QueryRow(
		"SELECT "+selectRoomColumns+" FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	))
}

func (db *PgRepository) GetRoomByExternalId(externalId string) (Room, error) {
	return scanRoom(db.conn.QueryRow(
		"SELECT "+selectRoomColumns+" FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	))
}

func (db *PgRepository) GetRoomWithParticipants(roomId int) (*Room, error) {
	room, err := db.GetRoomById(roomId)
	if err != nil {
		return nil, err
	}

	participants, err := db.ListParticipants(roomId)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	room.Participants = participants

	return &room, nil
}

func (db *PgRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.name, r.avatar_url, r.author_id, COALESCE(r.last_message_id, 0), r.created_at, r.updated_at "+
			"FROM rooms r JOIN participants p ON p.room_id = r.id "+
			"WHERE p.account_id = $1 ORDER BY r.updated_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Name,
			&r.AvatarUrl,
			&r.AuthorId,
			&r.LastMessageId,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func (db *PgRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	return scanRoom(db.conn.QueryRow(
		"UPDATE rooms SET name = $2, avatar_url = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+selectRoomColumns,
		params.RoomId,
		params.Name,
		params.AvatarUrl,
		time.Now().UTC(),
	))
}

func (db *PgRepository) DeleteRoom(roomId int) error {
	res, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (db *PgRepository) SetRoomLastMessage(roomId, messageId int) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET last_message_id = $2, updated_at = $3 WHERE id = $1",
		roomId,
		messageId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) AddParticipant(roomId, accountId int) error {
	// ON CONFLICT keeps joins idempotent
	_, err := db.conn.Exec(
		"INSERT INTO participants (room_id, account_id) VALUES ($1, $2) "+
			"ON CONFLICT (room_id, account_id) DO NOTHING",
		roomId,
		accountId,
	)

	return err
}

func (db *PgRepository) RemoveParticipant(roomId, accountId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM participants WHERE room_id = $1 AND account_id = $2",
		roomId,
		accountId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (db *PgRepository) ParticipantExists(roomId, accountId int) bool {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM participants WHERE room_id = $1 AND account_id = $2)",
		roomId,
		accountId,
	).Scan(&exists)

	return err == nil && exists
}

func (db *PgRepository) ListParticipants(roomId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username, a.is_online, a.created_at, a.updated_at "+
			"FROM accounts a JOIN participants p ON p.account_id = a.id "+
			"WHERE p.room_id = $1 ORDER BY a.id",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username, &u.IsOnline, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}

	return out, rows.Err()
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (correlation_id, room_id, author_id, content, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"RETURNING id, correlation_id, room_id, author_id, content, is_deleted, created_at, updated_at",
		params.CorrelationId,
		params.RoomId,
		params.AuthorId,
		params.Content,
		params.CreatedAt,
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.CorrelationId,
		&m.RoomId,
		&m.AuthorId,
		&m.Content,
		&m.IsDeleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, mapRowError(err)
}

func (db *PgRepository) GetMessageById(messageId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.correlation_id, m.room_id, m.author_id, a.username, m.content, m.is_deleted, m.created_at, m.updated_at "+
			"FROM messages m JOIN accounts a ON a.id = m.author_id "+
			"WHERE m.id = $1 LIMIT 1",
		messageId,
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.CorrelationId,
		&m.RoomId,
		&m.AuthorId,
		&m.Username,
		&m.Content,
		&m.IsDeleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, mapRowError(err)
}

func (db *PgRepository) UpdateMessage(params UpdateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET content = $2, is_deleted = $3, updated_at = $4 "+
			"WHERE id = $1 "+
			"RETURNING id, correlation_id, room_id, author_id, content, is_deleted, created_at, updated_at",
		params.MessageId,
		params.Content,
		params.IsDeleted,
		time.Now().UTC(),
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.CorrelationId,
		&m.RoomId,
		&m.AuthorId,
		&m.Content,
		&m.IsDeleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, mapRowError(err)
}

// ListMessages returns visible messages for a room, newest first. A non-zero
// before limits the page to messages with a smaller id.
func (db *PgRepository) ListMessages(roomId, before, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if before <= 0 {
		before = int(^uint(0) >> 1)
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.correlation_id, m.room_id, m.author_id, a.username, m.content, m.is_deleted, m.created_at, m.updated_at "+
			"FROM messages m JOIN accounts a ON a.id = m.author_id "+
			"WHERE m.room_id = $1 AND m.id < $2 AND m.is_deleted = FALSE "+
			"ORDER BY m.id DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.CorrelationId,
			&m.RoomId,
			&m.AuthorId,
			&m.Username,
			&m.Content,
			&m.IsDeleted,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

// DeleteRoomMessages physically removes a room's messages. Only the room
// delete cascade uses this; ordinary deletion is soft.
func (db *PgRepository) DeleteRoomMessages(roomId int) error {
	if _, err := db.conn.Exec("UPDATE rooms SET last_message_id = NULL WHERE id = $1", roomId); err != nil {
		return err
	}

	_, err := db.conn.Exec("DELETE FROM messages WHERE room_id = $1", roomId)
	return err
}
