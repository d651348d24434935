package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"taskchat/internal/server"
	"taskchat/internal/testutil"
	"taskchat/internal/types"
)

// newSocketTestServer accepts one connection and funnels every inbound
// event into a channel for assertions.
func newSocketTestServer(t *testing.T) (*httptest.Server, chan server.ClientEvent) {
	t.Helper()

	events := make(chan server.ClientEvent, 32)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var ev server.ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			events <- ev
		}
	}))
	t.Cleanup(srv.Close)

	return srv, events
}

func dialTestSocket(t *testing.T, srv *httptest.Server) *SocketClient {
	t.Helper()

	session := Session{
		User:            types.User{Id: 1, Username: "testuser"},
		IsAuthenticated: true,
		Tokens:          &types.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
	}

	sc, err := DialSocket("ws"+strings.TrimPrefix(srv.URL, "http"), session, NewChatStore(nil), testutil.TestLogger(t))
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	t.Cleanup(func() { sc.Close() })

	return sc
}

func recvClientEvent(t *testing.T, events chan server.ClientEvent, timeout time.Duration) server.ClientEvent {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a client event")
		return server.ClientEvent{}
	}
}

func TestSetTypingSendsStopOnItsOwn(t *testing.T) {
	srv, events := newSocketTestServer(t)
	sc := dialTestSocket(t, srv)

	assert.Nil(t, sc.SetTyping(7, true))

	ev := recvClientEvent(t, events, time.Second)
	if assert.NotNil(t, ev.Typing) {
		assert.Equal(t, 7, ev.Typing.RoomId)
		assert.True(t, ev.Typing.IsTyping)
	}

	// the stop arrives without any further call
	ev = recvClientEvent(t, events, typingDebounce+time.Second)
	if assert.NotNil(t, ev.Typing) {
		assert.Equal(t, 7, ev.Typing.RoomId)
		assert.False(t, ev.Typing.IsTyping)
	}
}

func TestSetTypingReArmResetsTheTimer(t *testing.T) {
	srv, events := newSocketTestServer(t)
	sc := dialTestSocket(t, srv)

	assert.Nil(t, sc.SetTyping(7, true))
	ev := recvClientEvent(t, events, time.Second)
	assert.NotNil(t, ev.Typing)

	time.Sleep(1500 * time.Millisecond)
	assert.Nil(t, sc.SetTyping(7, true))
	ev = recvClientEvent(t, events, time.Second)
	if assert.NotNil(t, ev.Typing) {
		assert.True(t, ev.Typing.IsTyping)
	}

	// the original deadline has passed, but the re-arm pushed the stop out
	select {
	case ev := <-events:
		t.Fatalf("unexpected event before the re-armed deadline: %+v", ev)
	case <-time.After(2 * time.Second):
	}

	ev = recvClientEvent(t, events, 2*time.Second)
	if assert.NotNil(t, ev.Typing) {
		assert.False(t, ev.Typing.IsTyping)
	}
}

func TestSetTypingExplicitStopCancelsTheTimer(t *testing.T) {
	srv, events := newSocketTestServer(t)
	sc := dialTestSocket(t, srv)

	assert.Nil(t, sc.SetTyping(7, true))
	assert.Nil(t, sc.SetTyping(7, false))

	ev := recvClientEvent(t, events, time.Second)
	if assert.NotNil(t, ev.Typing) {
		assert.True(t, ev.Typing.IsTyping)
	}
	ev = recvClientEvent(t, events, time.Second)
	if assert.NotNil(t, ev.Typing) {
		assert.False(t, ev.Typing.IsTyping)
	}

	// no second stop fires once the timer is cancelled
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after an explicit stop: %+v", ev)
	case <-time.After(typingDebounce + 500*time.Millisecond):
	}
}
