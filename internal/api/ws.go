package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"taskchat/internal/server"
	"taskchat/internal/token"
	"taskchat/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWs authenticates the handshake and hands the connection to the chat
// server. Authentication happens before the upgrade so a rejected client gets
// a proper 401 with a code telling it whether a refresh is worth attempting.
func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		errResp := NewUnauthorizedError(tokenInvalidCode)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	payload, err := s.tokens.VerifyAccess(tokenString)
	if err != nil {
		code := tokenInvalidCode
		if errors.Is(err, token.ErrTokenExpired) {
			code = tokenExpiredCode
		}
		errResp := NewUnauthorizedError(code)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("ws: upgrade: %v", err)
		return
	}

	user := types.User{
		Id:       payload.UserId,
		Username: payload.Username,
		Email:    payload.Email,
	}

	client := server.NewClient(user, conn, s.cs, s.log)
	s.cs.RegisterChan <- client

	go client.Write()
	go client.Read()
}
