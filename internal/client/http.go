package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
	"taskchat/internal/types"
)

// ErrSessionExpired is returned once a refresh fails and the stored tokens
// have been cleared; the caller has to authenticate again.
var ErrSessionExpired = errors.New("session expired")

const tokenExpiredCode = "AuthenticationTokenExpired"

// APIClient talks to the HTTP API with the stored credentials. Refreshes are
// single-flight: any number of requests hitting a 401 concurrently produce
// exactly one refresh call, and the stragglers reuse its result.
type APIClient struct {
	baseUrl string
	http    *http.Client
	store   *SessionStore
	log     *log.Logger

	refreshGroup singleflight.Group
}

func NewAPIClient(baseUrl string, store *SessionStore, logger *log.Logger) *APIClient {
	return &APIClient{
		baseUrl: baseUrl,
		http:    &http.Client{Timeout: 15 * time.Second},
		store:   store,
		log:     logger,
	}
}

type apiErrorBody struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *apiErrorBody) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Refresh rotates the token pair. Concurrent callers share one network call;
// on failure the stored tokens are cleared so every waiter fails the same
// way.
func (c *APIClient) Refresh() (types.TokenPair, error) {
	pair, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		session := c.store.Current()
		if session.Tokens == nil {
			return types.TokenPair{}, ErrSessionExpired
		}

		var resp struct {
			Tokens types.TokenPair `json:"tokens"`
		}
		err := c.postJson("/api/auth/refresh", map[string]string{
			"refresh_token": session.Tokens.RefreshToken,
		}, &resp)
		if err != nil {
			c.log.Printf("token refresh failed: %v", err)
			if logoutErr := c.store.Logout(); logoutErr != nil {
				c.log.Printf("clear session: %v", logoutErr)
			}
			return types.TokenPair{}, fmt.Errorf("%w: %s", ErrSessionExpired, err)
		}

		if err := c.store.UpdateTokens(resp.Tokens); err != nil {
			return types.TokenPair{}, err
		}

		return resp.Tokens, nil
	})
	if err != nil {
		return types.TokenPair{}, err
	}

	return pair.(types.TokenPair), nil
}

func (c *APIClient) Register(username, email, password string) (types.User, error) {
	var resp struct {
		User   types.User      `json:"user"`
		Tokens types.TokenPair `json:"tokens"`
	}
	err := c.postJson("/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return types.User{}, err
	}

	if err := c.store.SetSession(resp.User, resp.Tokens); err != nil {
		return types.User{}, err
	}

	return resp.User, nil
}

func (c *APIClient) Login(email, password string) (types.User, error) {
	var resp struct {
		User   types.User      `json:"user"`
		Tokens types.TokenPair `json:"tokens"`
	}
	err := c.postJson("/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return types.User{}, err
	}

	if err := c.store.SetSession(resp.User, resp.Tokens); err != nil {
		return types.User{}, err
	}

	return resp.User, nil
}

func (c *APIClient) Logout() error {
	if err := c.doJson(http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		// the server call is best-effort; local state is cleared regardless
		c.log.Printf("logout request: %v", err)
	}

	return c.store.Logout()
}

func (c *APIClient) Rooms() ([]types.Room, error) {
	var rooms []types.Room
	err := c.doJson(http.MethodGet, "/api/rooms", nil, &rooms)
	return rooms, err
}

func (c *APIClient) CreateRoom(name string) (types.Room, error) {
	var room types.Room
	err := c.doJson(http.MethodPost, "/api/rooms", map[string]string{"name": name}, &room)
	return room, err
}

func (c *APIClient) Messages(roomId, before, limit int) ([]types.Message, error) {
	path := "/api/messages?room_id=" + strconv.Itoa(roomId)
	if before > 0 {
		path += "&before=" + strconv.Itoa(before)
	}
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}

	var msgs []types.Message
	err := c.doJson(http.MethodGet, path, nil, &msgs)
	return msgs, err
}

// postJson is doJson without authentication, for the auth endpoints.
func (c *APIClient) postJson(path string, body, out any) error {
	req, err := c.newRequest(http.MethodPost, path, body)
	if err != nil {
		return err
	}

	return c.send(req, out)
}

// doJson performs an authenticated request. A 401 carrying the expired code
// triggers one refresh and one retry; any other failure is returned as-is.
func (c *APIClient) doJson(method, path string, body, out any) error {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return err
	}
	c.authorize(req)

	err = c.send(req, out)

	var apiErr *apiErrorBody
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && apiErr.Code == tokenExpiredCode {
		if _, err := c.Refresh(); err != nil {
			return err
		}

		retry, err := c.newRequest(method, path, body)
		if err != nil {
			return err
		}
		c.authorize(retry)
		return c.send(retry, out)
	}

	return err
}

func (c *APIClient) newRequest(method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseUrl+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (c *APIClient) authorize(req *http.Request) {
	if session := c.store.Current(); session.Tokens != nil {
		req.Header.Set("Authorization", "Bearer "+session.Tokens.AccessToken)
	}
}

func (c *APIClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiErrorBody{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = resp.Status
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
