package client

import (
	"log"
	"net/url"
	"time"

	"taskchat/internal/token"
	"taskchat/internal/types"
)

// SessionState classifies the access token at a point in time.
type SessionState int

const (
	SessionValid SessionState = iota
	// SessionNearExpiry means the token still verifies but expires within the
	// warn threshold; a proactive refresh avoids a mid-request 401.
	SessionNearExpiry
	SessionExpired
	// SessionInvalid covers structurally broken tokens; refreshing is
	// pointless and the session ends immediately.
	SessionInvalid
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultWarnThreshold = 5 * time.Minute
)

// Classify inspects the token locally, without the signing key. The split
// between Expired and Invalid decides whether a refresh is worth attempting.
func Classify(tokenString string, now time.Time, warn time.Duration) SessionState {
	if tokenString == "" {
		return SessionInvalid
	}

	claims, err := token.DecodeUnverified(tokenString)
	if err != nil {
		return SessionInvalid
	}

	exp := claims.ExpiresAt.Time
	switch {
	case !exp.After(now):
		return SessionExpired
	case exp.Sub(now) <= warn:
		return SessionNearExpiry
	default:
		return SessionValid
	}
}

// TokenRefresher exchanges the stored refresh token for a new pair.
type TokenRefresher interface {
	Refresh() (types.TokenPair, error)
}

// Monitor polls the stored access token and keeps the session alive: a
// near-expiry token triggers one proactive refresh, a dead one forces logout
// and a redirect to the login page that preserves the interrupted path.
type Monitor struct {
	store     *SessionStore
	refresher TokenRefresher
	log       *log.Logger

	interval time.Duration
	warn     time.Duration

	currentPath func() string
	navigate    func(string)

	now  func() time.Time
	stop chan struct{}
}

func NewMonitor(store *SessionStore, refresher TokenRefresher, logger *log.Logger,
	currentPath func() string, navigate func(string)) *Monitor {
	return &Monitor{
		store:       store,
		refresher:   refresher,
		log:         logger,
		interval:    defaultCheckInterval,
		warn:        defaultWarnThreshold,
		currentPath: currentPath,
		navigate:    navigate,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

// SetWarnThreshold overrides how far before expiry the proactive refresh
// kicks in. Call before Run.
func (m *Monitor) SetWarnThreshold(d time.Duration) {
	m.warn = d
}

func (m *Monitor) Run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !m.check() {
				return
			}
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// check runs one classification pass and reports whether monitoring should
// continue.
func (m *Monitor) check() bool {
	session := m.store.Current()
	if !session.IsAuthenticated || session.Tokens == nil {
		return true
	}

	switch Classify(session.Tokens.AccessToken, m.now(), m.warn) {
	case SessionValid:
		return true
	case SessionNearExpiry:
		// a failed proactive refresh ends the session; it is never retried
		if err := m.ExtendSession(); err != nil {
			m.log.Printf("proactive refresh failed: %v", err)
			m.forceLogout()
			return false
		}
		return true
	default:
		m.forceLogout()
		return false
	}
}

// ExtendSession refreshes the token pair immediately. The refresher already
// stores the rotated pair on success.
func (m *Monitor) ExtendSession() error {
	_, err := m.refresher.Refresh()
	return err
}

func (m *Monitor) forceLogout() {
	m.log.Println("session is no longer valid, logging out")

	if err := m.store.Logout(); err != nil {
		m.log.Printf("clear session: %v", err)
	}
	m.navigate(loginRedirect(m.currentPath()))
	m.Stop()
}

// loginRedirect builds the login location with the interrupted path encoded
// so it survives the round trip through the login form.
func loginRedirect(path string) string {
	return "/login?redirect=" + url.QueryEscape(path)
}
