package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"taskchat/internal/types"
)

func TestOptimisticReconcileByCorrelationId(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	optimistic := store.SendOptimistic(1, 1, "alice", "hello")
	assert.NotEmpty(t, optimistic.CorrelationId)
	assert.True(t, optimistic.IsOptimistic)

	// the server broadcast echoes the correlation id with the persisted row
	store.AddMessage(types.Message{
		Id:            10,
		CorrelationId: optimistic.CorrelationId,
		RoomId:        1,
		AuthorId:      1,
		Content:       "hello",
		CreatedAt:     time.Now(),
	})

	msgs := store.Messages(1)
	if assert.Len(t, msgs, 1, "the optimistic copy is replaced, never duplicated") {
		assert.Equal(t, 10, msgs[0].Id)
		assert.False(t, msgs[0].IsOptimistic)
	}
}

func TestOptimisticReconcileByContentWindow(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	store.SendOptimistic(1, 1, "alice", "hello")

	// no correlation id on the echo: author and content within the window
	// still match
	store.AddMessage(types.Message{
		Id:        10,
		RoomId:    1,
		AuthorId:  1,
		Content:   "hello",
		CreatedAt: time.Now().Add(2 * time.Second),
	})

	msgs := store.Messages(1)
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, 10, msgs[0].Id)
	}
}

func TestContentMatchOutsideWindowAppends(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	store.SendOptimistic(1, 1, "alice", "hello")

	store.AddMessage(types.Message{
		Id:        10,
		RoomId:    1,
		AuthorId:  1,
		Content:   "hello",
		CreatedAt: time.Now().Add(10 * time.Second),
	})

	assert.Len(t, store.Messages(1), 2, "a stale echo is a distinct message")
}

func TestContentMatchDifferentAuthorAppends(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	store.SendOptimistic(1, 1, "alice", "hello")

	store.AddMessage(types.Message{
		Id:        10,
		RoomId:    1,
		AuthorId:  2,
		Content:   "hello",
		CreatedAt: time.Now(),
	})

	assert.Len(t, store.Messages(1), 2, "someone else saying the same thing is not a match")
}

func TestUnreadCountsSkipCurrentRoom(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	store.AddMessage(types.Message{Id: 1, RoomId: 1, AuthorId: 2, Content: "in focus"})
	store.AddMessage(types.Message{Id: 2, RoomId: 7, AuthorId: 2, Content: "elsewhere"})
	store.AddMessage(types.Message{Id: 3, RoomId: 7, AuthorId: 2, Content: "again"})

	assert.Equal(t, 0, store.Unread(1), "the focused room never counts unread")
	assert.Equal(t, 2, store.Unread(7))

	// focusing the room clears its counter
	store.SetCurrentRoom(7)
	assert.Equal(t, 0, store.Unread(7))
}

func TestMarkFailedFlagsOptimisticEntry(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	optimistic := store.SendOptimistic(1, 1, "alice", "hello")
	store.MarkFailed(1, optimistic.CorrelationId)

	msgs := store.Messages(1)
	if assert.Len(t, msgs, 1) {
		assert.True(t, msgs[0].Failed)
		assert.True(t, msgs[0].IsOptimistic)
	}

	// a failed entry is no longer a reconcile candidate
	store.AddMessage(types.Message{
		Id:        10,
		RoomId:    1,
		AuthorId:  1,
		Content:   "hello",
		CreatedAt: time.Now(),
	})
	assert.Len(t, store.Messages(1), 2)
}

func TestUpdateAndRemoveMessage(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	store.AddMessage(types.Message{Id: 1, RoomId: 1, AuthorId: 2, Content: "original"})
	store.UpdateMessage(types.Message{Id: 1, RoomId: 1, AuthorId: 2, Content: "edited"})

	msgs := store.Messages(1)
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, "edited", msgs[0].Content)
	}

	store.RemoveMessage(1, 1)
	assert.Empty(t, store.Messages(1))
}

func TestRemoveRoomClearsAllState(t *testing.T) {
	store := NewChatStore(nil)
	store.SetCurrentRoom(1)

	store.AddMessage(types.Message{Id: 1, RoomId: 7, AuthorId: 2, Content: "hi"})
	store.SetTyping(7, 2, "bob", true)

	store.RemoveRoom(7)
	assert.Empty(t, store.Messages(7))
	assert.Equal(t, 0, store.Unread(7))
	assert.Empty(t, store.TypingUsers(7))
}

func TestTypingDebounce(t *testing.T) {
	store := NewChatStore(nil)

	store.SetTyping(1, 2, "bob", true)
	store.SetTyping(1, 3, "carol", true)
	assert.Equal(t, []string{"bob", "carol"}, store.TypingUsers(1))

	// an explicit stop clears immediately
	store.SetTyping(1, 3, "carol", false)
	assert.Equal(t, []string{"bob"}, store.TypingUsers(1))

	// without re-arm the indicator self-expires
	assert.Eventually(t, func() bool {
		return len(store.TypingUsers(1)) == 0
	}, typingDebounce+time.Second, 50*time.Millisecond)
}

func TestTypingRearmExtendsExpiry(t *testing.T) {
	store := NewChatStore(nil)

	store.SetTyping(1, 2, "bob", true)
	time.Sleep(typingDebounce / 2)
	store.SetTyping(1, 2, "bob", true)
	time.Sleep(typingDebounce / 2)

	// the first window has elapsed but the re-arm keeps the indicator alive
	assert.Equal(t, []string{"bob"}, store.TypingUsers(1))
}

func TestChangeNotifications(t *testing.T) {
	var changes int
	store := NewChatStore(func() { changes++ })

	store.SetCurrentRoom(1)
	store.SendOptimistic(1, 1, "alice", "hello")
	store.AddMessage(types.Message{Id: 1, RoomId: 1, AuthorId: 2, Content: "hi"})

	assert.Equal(t, 3, changes)
}
