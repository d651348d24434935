package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"taskchat/internal/types"
)

const (
	// reconcileWindow bounds the content-match fallback for servers that do
	// not echo a correlation id
	reconcileWindow = 5 * time.Second
	typingDebounce  = 3 * time.Second
)

// Message wraps the wire message with local delivery state.
type Message struct {
	types.Message
	IsOptimistic bool
	Failed       bool
}

type typingEntry struct {
	username string
	timer    *time.Timer
}

// ChatStore is the client-side room state: message lists with optimistic
// entries, unread counters and ephemeral typing indicators. It is safe for
// concurrent use by the socket read loop and the UI.
type ChatStore struct {
	mu sync.Mutex

	currentRoomId int
	messages      map[int][]Message
	unread        map[int]int
	typing        map[int]map[int]*typingEntry

	onChange func()
	now      func() time.Time
}

func NewChatStore(onChange func()) *ChatStore {
	if onChange == nil {
		onChange = func() {}
	}
	return &ChatStore{
		messages: make(map[int][]Message),
		unread:   make(map[int]int),
		typing:   make(map[int]map[int]*typingEntry),
		onChange: onChange,
		now:      time.Now,
	}
}

// SetCurrentRoom switches the focused room and clears its unread counter.
func (s *ChatStore) SetCurrentRoom(roomId int) {
	s.mu.Lock()
	s.currentRoomId = roomId
	delete(s.unread, roomId)
	s.mu.Unlock()

	s.onChange()
}

// SendOptimistic appends a locally-echoed copy of an outgoing message and
// returns it. The correlation id ties the copy to the server's broadcast.
func (s *ChatStore) SendOptimistic(roomId, authorId int, username, content string) Message {
	msg := Message{
		Message: types.Message{
			CorrelationId: uuid.NewString(),
			RoomId:        roomId,
			AuthorId:      authorId,
			Username:      username,
			Content:       content,
			CreatedAt:     s.now(),
		},
		IsOptimistic: true,
	}

	s.mu.Lock()
	s.messages[roomId] = append(s.messages[roomId], msg)
	s.mu.Unlock()

	s.onChange()
	return msg
}

// AddMessage ingests a server broadcast. A matching optimistic entry is
// replaced in place rather than appended, so the sender never sees their
// message twice. Matching is by correlation id first, then by author and
// content within a short window for echoes that lost the id.
func (s *ChatStore) AddMessage(msg types.Message) {
	s.mu.Lock()

	msgs := s.messages[msg.RoomId]
	idx := -1
	if msg.CorrelationId != "" {
		idx = lo.IndexOf(lo.Map(msgs, func(m Message, _ int) string {
			return m.CorrelationId
		}), msg.CorrelationId)
	}
	if idx < 0 {
		idx = s.contentMatch(msgs, msg)
	}

	if idx >= 0 {
		msgs[idx] = Message{Message: msg}
	} else {
		msgs = append(msgs, Message{Message: msg})
		if msg.RoomId != s.currentRoomId {
			s.unread[msg.RoomId]++
		}
	}
	s.messages[msg.RoomId] = msgs

	s.mu.Unlock()
	s.onChange()
}

func (s *ChatStore) contentMatch(msgs []Message, msg types.Message) int {
	for i, m := range msgs {
		if !m.IsOptimistic || m.Failed {
			continue
		}
		if m.AuthorId != msg.AuthorId || m.Content != msg.Content {
			continue
		}
		if msg.CreatedAt.Sub(m.CreatedAt) < -reconcileWindow || msg.CreatedAt.Sub(m.CreatedAt) > reconcileWindow {
			continue
		}
		return i
	}

	return -1
}

// MarkFailed flags an optimistic entry whose send was rejected.
func (s *ChatStore) MarkFailed(roomId int, correlationId string) {
	s.mu.Lock()
	for i, m := range s.messages[roomId] {
		if m.CorrelationId == correlationId && m.IsOptimistic {
			s.messages[roomId][i].Failed = true
			break
		}
	}
	s.mu.Unlock()

	s.onChange()
}

// UpdateMessage replaces a message in place after an edit or restore.
func (s *ChatStore) UpdateMessage(msg types.Message) {
	s.mu.Lock()
	for i, m := range s.messages[msg.RoomId] {
		if m.Id == msg.Id {
			s.messages[msg.RoomId][i] = Message{Message: msg}
			break
		}
	}
	s.mu.Unlock()

	s.onChange()
}

// RemoveMessage drops a deleted message from the list.
func (s *ChatStore) RemoveMessage(roomId, messageId int) {
	s.mu.Lock()
	s.messages[roomId] = lo.Reject(s.messages[roomId], func(m Message, _ int) bool {
		return m.Id == messageId
	})
	s.mu.Unlock()

	s.onChange()
}

// RemoveRoom clears all state for a deleted room.
func (s *ChatStore) RemoveRoom(roomId int) {
	s.mu.Lock()
	delete(s.messages, roomId)
	delete(s.unread, roomId)
	if entries, ok := s.typing[roomId]; ok {
		for _, e := range entries {
			e.timer.Stop()
		}
		delete(s.typing, roomId)
	}
	s.mu.Unlock()

	s.onChange()
}

func (s *ChatStore) Messages(roomId int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages[roomId]))
	copy(out, s.messages[roomId])
	return out
}

func (s *ChatStore) Unread(roomId int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unread[roomId]
}

// SetTyping records a typing indicator. An active indicator self-clears
// after the debounce window unless re-armed by another event.
func (s *ChatStore) SetTyping(roomId, userId int, username string, isTyping bool) {
	s.mu.Lock()

	entries, ok := s.typing[roomId]
	if !ok {
		entries = make(map[int]*typingEntry)
		s.typing[roomId] = entries
	}

	if !isTyping {
		if e, ok := entries[userId]; ok {
			e.timer.Stop()
			delete(entries, userId)
		}
		s.mu.Unlock()
		s.onChange()
		return
	}

	if e, ok := entries[userId]; ok {
		e.timer.Reset(typingDebounce)
		s.mu.Unlock()
		return
	}

	entries[userId] = &typingEntry{
		username: username,
		timer: time.AfterFunc(typingDebounce, func() {
			s.SetTyping(roomId, userId, username, false)
		}),
	}
	s.mu.Unlock()

	s.onChange()
}

// TypingUsers returns the usernames currently typing in a room, sorted for
// stable rendering.
func (s *ChatStore) TypingUsers(roomId int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := lo.Map(lo.Values(s.typing[roomId]), func(e *typingEntry, _ int) string {
		return e.username
	})
	sort.Strings(names)
	return names
}
