package api

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
	"taskchat/internal/database"
	"taskchat/internal/domain"
	"taskchat/internal/token"
	"taskchat/internal/types"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type authResponse struct {
	User   types.User      `json:"user"`
	Tokens types.TokenPair `json:"tokens"`
}

type tokensResponse struct {
	Tokens types.TokenPair `json:"tokens"`
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *App) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	account, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	tokens, err := s.tokens.Issue(token.Payload{
		UserId:   account.Id,
		Email:    account.Email,
		Username: account.Username,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Printf("registered account %q", account.Username)
	s.writeJson(w, http.StatusCreated, authResponse{User: accountToType(account), Tokens: tokens})
}

func (s *App) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	account, err := s.db.GetAccountByEmail(req.Email)
	if err != nil {
		// an unknown email and a wrong password are indistinguishable to the
		// caller
		if errors.Is(err, domain.ErrNotFound) {
			s.writeError(w, NewUnauthorizedError(""))
			return
		}
		s.writeError(w, err)
		return
	}

	if !verifyPassword(account.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError(""))
		return
	}

	tokens, err := s.tokens.Issue(token.Payload{
		UserId:   account.Id,
		Email:    account.Email,
		Username: account.Username,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.db.SetAccountOnline(account.Id, true); err != nil {
		s.log.Printf("set account %d online: %v", account.Id, err)
	}
	account.IsOnline = true

	s.writeJson(w, http.StatusOK, authResponse{User: accountToType(account), Tokens: tokens})
}

// refresh exchanges a valid refresh token for a new pair. Rotation is
// stateless, so no credentials or prior access token are needed here.
func (s *App) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	tokens, err := s.tokens.Rotate(req.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, tokensResponse{Tokens: tokens})
}

func (s *App) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError(tokenInvalidCode))
		return
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, err)
		return
	}
	account.IsOnline = s.cs.IsOnline(account.Id)

	s.writeJson(w, http.StatusOK, accountToType(account))
}

// logout flips the online flag and force-closes the user's sockets. Issued
// tokens stay cryptographically valid until they expire; connection teardown
// is the enforcement.
func (s *App) logout(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError(tokenInvalidCode))
		return
	}

	if err := s.db.SetAccountOnline(userId, false); err != nil {
		s.log.Printf("set account %d offline: %v", userId, err)
	}
	s.cs.DisconnectUser(userId)

	s.writeJson(w, http.StatusNoContent, nil)
}

func accountToType(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Email:     u.Email,
		IsOnline:  u.IsOnline,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
