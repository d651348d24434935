package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"taskchat/internal/chat"
	"taskchat/internal/config"
	"taskchat/internal/database"
	"taskchat/internal/server"
	"taskchat/internal/token"
)

type App struct {
	log      *log.Logger
	db       database.Repository
	tokens   *token.Service
	rooms    *chat.RoomService
	messages *chat.MessageService
	cs       *server.ChatServer
	validate *validator.Validate
	mux      *http.Server
}

func NewApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.Repository,
	tokens *token.Service, rooms *chat.RoomService, messages *chat.MessageService, cfg *config.Config) *App {
	s := &App{
		log:      logger,
		db:       db,
		tokens:   tokens,
		rooms:    rooms,
		messages: messages,
		cs:       cs,
		validate: validator.New(),
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/refresh", s.refresh)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.HandleFunc("PUT /api/rooms", s.authMiddleware(s.updateRoom))
	mux.HandleFunc("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.HandleFunc("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("POST /api/rooms/leave", s.authMiddleware(s.leaveRoom))
	mux.HandleFunc("POST /api/rooms/invite", s.authMiddleware(s.inviteToRoom))
	mux.HandleFunc("POST /api/rooms/members/remove", s.authMiddleware(s.removeMember))

	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("PUT /api/messages", s.authMiddleware(s.updateMessage))
	mux.HandleFunc("DELETE /api/messages", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/messages/restore", s.authMiddleware(s.restoreMessage))

	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *App) writeError(w http.ResponseWriter, err error) {
	errResp := fromError(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Printf("internal error: %v", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeAndValidate parses a JSON request body and runs struct validation.
func (s *App) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError("")
	}
	if err := s.validate.Struct(v); err != nil {
		return NewBadRequestError(err.Error())
	}

	return nil
}
