package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"taskchat/internal/database"
	"taskchat/internal/token"
)

func wsUrl(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestServeWs(t *testing.T) {
	mockRepo := &database.MockRepository{}
	app := newTestApp(t, mockRepo)

	srv := httptest.NewServer(http.HandlerFunc(app.serveWs))
	defer srv.Close()

	t.Run("rejects a handshake without a token", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl(srv), nil)
		assert.NotNil(t, err)
		assert.Nil(t, conn)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var apiErr ApiError
		assert.Nil(t, json.NewDecoder(resp.Body).Decode(&apiErr))
		assert.Equal(t, tokenInvalidCode, apiErr.Code)
	})

	t.Run("rejects an expired token with the expired code", func(t *testing.T) {
		expired, err := token.NewService(
			[]byte("access-key-for-tests-0123456789ab"),
			[]byte("refresh-key-for-tests-0123456789a"),
			time.Nanosecond,
			time.Hour,
		)
		assert.Nil(t, err)
		pair, err := expired.Issue(token.Payload{UserId: 4, Username: "testuser"})
		assert.Nil(t, err)
		time.Sleep(10 * time.Millisecond)

		header := http.Header{"Authorization": []string{"Bearer " + pair.AccessToken}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl(srv), header)
		assert.NotNil(t, err)
		assert.Nil(t, conn)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var apiErr ApiError
		assert.Nil(t, json.NewDecoder(resp.Body).Decode(&apiErr))
		assert.Equal(t, tokenExpiredCode, apiErr.Code)
	})

	t.Run("upgrades an authenticated handshake", func(t *testing.T) {
		pair := issueTestPair(t, app, 4)

		header := http.Header{"Authorization": []string{"Bearer " + pair.AccessToken}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl(srv), header)
		assert.Nil(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
		defer conn.Close()

		assert.Eventually(t, func() bool { return app.cs.IsOnline(4) },
			time.Second, 10*time.Millisecond)
	})

	t.Run("token query parameter works for browsers", func(t *testing.T) {
		pair := issueTestPair(t, app, 6)

		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl(srv)+"?token="+pair.AccessToken, nil)
		assert.Nil(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
		defer conn.Close()

		assert.Eventually(t, func() bool { return app.cs.IsOnline(6) },
			time.Second, 10*time.Millisecond)
	})
}
