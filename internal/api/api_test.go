package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"taskchat/internal/chat"
	"taskchat/internal/config"
	"taskchat/internal/database"
	"taskchat/internal/server"
	"taskchat/internal/stats"
	"taskchat/internal/testutil"
	"taskchat/internal/token"
	"taskchat/internal/types"
)

// newTestApp wires an App against a mock repository with a real token
// service and a running chat server run loop.
func newTestApp(t *testing.T, mockRepo *database.MockRepository) *App {
	t.Helper()

	logger := testutil.TestLogger(t)
	tokens := newTestTokenService(t)

	roomSvc := chat.NewRoomService(logger, mockRepo)
	msgSvc := chat.NewMessageService(logger, mockRepo)

	cs, err := server.NewChatServer(logger, roomSvc, msgSvc, stats.NopStats{})
	if err != nil {
		t.Fatalf("new chat server: %v", err)
	}
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := testContext(t)
		defer cancel()
		cs.Shutdown(ctx)
	})

	return NewApp(http.NewServeMux(), logger, cs, mockRepo, tokens, roomSvc, msgSvc, &config.Config{
		ServerAddr:     ":0",
		AllowedOrigins: []string{"*"},
	})
}

func issueTestPair(t *testing.T, app *App, userId int) types.TokenPair {
	t.Helper()

	pair, err := app.tokens.Issue(token.Payload{
		UserId:   userId,
		Email:    "test@example.com",
		Username: "testuser",
	})
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}
	return pair
}

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func newTestTokenService(t *testing.T) *token.Service {
	t.Helper()

	svc, err := token.NewService(
		[]byte("access-key-for-tests-0123456789ab"),
		[]byte("refresh-key-for-tests-0123456789a"),
		15*time.Minute,
		7*24*time.Hour,
	)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}
