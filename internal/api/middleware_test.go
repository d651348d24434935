package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"taskchat/internal/database"
	"taskchat/internal/token"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user id",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user id set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok)
			assert.Equal(t, tc.userId, userId)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tcases := []struct {
		name     string
		header   string
		query    string
		expected string
	}{
		{
			name:     "authorization header",
			header:   "Bearer abc.def.ghi",
			expected: "abc.def.ghi",
		},
		{
			name:     "lowercase scheme",
			header:   "bearer abc.def.ghi",
			expected: "abc.def.ghi",
		},
		{
			name:     "wrong scheme",
			header:   "Basic dXNlcjpwYXNz",
			expected: "",
		},
		{
			name:     "query parameter fallback",
			query:    "abc.def.ghi",
			expected: "abc.def.ghi",
		},
		{
			name:     "header wins over query",
			header:   "Bearer from-header",
			query:    "from-query",
			expected: "from-header",
		},
		{
			name:     "nothing provided",
			expected: "",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/ws"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			assert.Equal(t, tc.expected, bearerToken(req))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	mockRepo := &database.MockRepository{}
	app := newTestApp(t, mockRepo)

	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		assert.True(t, ok)
		app.writeJson(w, http.StatusOK, map[string]int{"user_id": userId})
	})

	t.Run("valid token passes through", func(t *testing.T) {
		pair := issueTestPair(t, app, 9)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")

		var resp map[string]int
		assert.Nil(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, 9, resp["user_id"])
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp ApiError
		assert.Nil(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, tokenInvalidCode, resp.Code)
	})

	t.Run("expired token carries the expired code", func(t *testing.T) {
		expired, err := token.NewService(
			[]byte("access-key-for-tests-0123456789ab"),
			[]byte("refresh-key-for-tests-0123456789a"),
			time.Nanosecond,
			time.Hour,
		)
		assert.Nil(t, err)
		pair, err := expired.Issue(token.Payload{UserId: 9, Username: "testuser"})
		assert.Nil(t, err)
		time.Sleep(10 * time.Millisecond)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp ApiError
		assert.Nil(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, tokenExpiredCode, resp.Code)
	})

	t.Run("garbage token carries the invalid code", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp ApiError
		assert.Nil(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, tokenInvalidCode, resp.Code)
	})
}

func TestErrorHandlerRecoversPanic(t *testing.T) {
	mockRepo := &database.MockRepository{}
	app := newTestApp(t, mockRepo)

	handler := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
