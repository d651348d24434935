package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"taskchat/internal/server"
)

const (
	tokenExpiredCode = server.CodeTokenExpired
	tokenInvalidCode = server.CodeTokenInvalid
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdKey).(int)
	return userId, ok
}

// bearerToken extracts the access token from the Authorization header, or
// from the token query parameter for socket handshakes where headers are
// awkward to set from browsers.
func bearerToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("Bearer "):])
		}
		return ""
	}

	return r.URL.Query().Get("token")
}

func (s *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware verifies the bearer token and attaches the authenticated
// user id to the request context. Expired and invalid tokens carry distinct
// codes so clients know whether a refresh is worth attempting.
func (s *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			errResp := NewUnauthorizedError(tokenInvalidCode)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		payload, err := s.tokens.VerifyAccess(tokenString)
		if err != nil {
			s.log.Printf("verify access token: %v", err)
			errResp := fromError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), payload.UserId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
