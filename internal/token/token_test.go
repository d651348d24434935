package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAccessKey  = []byte("access-signing-key")
	testRefreshKey = []byte("refresh-signing-key")
)

func newTestService(t *testing.T, accessTTL, refreshTTL time.Duration) *Service {
	t.Helper()

	svc, err := NewService(testAccessKey, testRefreshKey, accessTTL, refreshTTL)
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, testRefreshKey, time.Minute, time.Hour)
	assert.Error(t, err, "expected error for empty access key")

	_, err = NewService(testAccessKey, testRefreshKey, 0, time.Hour)
	assert.Error(t, err, "expected error for zero access TTL")

	svc, err := NewService(testAccessKey, testRefreshKey, time.Minute, time.Hour)
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestIssueRoundTrip(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, 7*24*time.Hour)

	p := Payload{UserId: 42, Email: "jdoe@example.com", Username: "jdoe", TokenVersion: 3}
	pair, err := svc.Issue(p)
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((15*time.Minute).Seconds()), pair.ExpiresIn)

	got, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p, got, "access token claims should round-trip")

	got, err = svc.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, p, got, "refresh token claims should round-trip")
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, 7*24*time.Hour)

	pair, err := svc.Issue(Payload{UserId: 1, Username: "jdoe"})
	require.NoError(t, err)

	// each token only verifies against its own key
	_, err = svc.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpired(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, time.Hour)

	issuedAt := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issuedAt }

	pair, err := svc.Issue(Payload{UserId: 7, Username: "jdoe"})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired, "expired access token should be distinguished from invalid")

	_, err = svc.VerifyRefresh(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyInvalid(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, time.Hour)

	_, err := svc.VerifyAccess("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewService([]byte("other-key"), testRefreshKey, time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := other.Issue(Payload{UserId: 7})
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid, "token signed with a different key should be invalid, not expired")
}

func TestRotate(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, time.Hour)

	p := Payload{UserId: 9, Email: "jdoe@example.com", Username: "jdoe", TokenVersion: 1}
	pair, err := svc.Issue(p)
	require.NoError(t, err)

	rotated, err := svc.Rotate(pair.RefreshToken)
	require.NoError(t, err)

	got, err := svc.VerifyAccess(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p, got, "rotation should preserve application claims")

	_, err = svc.Rotate(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid, "rotating an access token should fail")

	_, err = svc.Rotate("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDecodeUnverified(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, time.Hour)

	pair, err := svc.Issue(Payload{UserId: 5, Username: "jdoe"})
	require.NoError(t, err)

	claims, err := DecodeUnverified(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 5, claims.UserId)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))

	_, err = DecodeUnverified("one.segment")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = DecodeUnverified("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
