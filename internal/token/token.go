package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"taskchat/internal/types"
)

// Verification failures are split so callers can attempt a refresh on an
// expired token but reject a malformed or tampered one outright.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims is the claim set carried by both access and refresh tokens.
type Claims struct {
	UserId       int    `json:"user_id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

// Payload is the application-level claim set, without the JWT registered
// fields. Rotation re-issues a pair from a Payload so stale iat/exp values
// never leak into the new tokens.
type Payload struct {
	UserId       int
	Email        string
	Username     string
	TokenVersion int
}

type Service struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(accessKey, refreshKey []byte, accessTTL, refreshTTL time.Duration) (*Service, error) {
	if len(accessKey) == 0 || len(refreshKey) == 0 {
		return nil, fmt.Errorf("signing keys cannot be empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}

	return &Service{
		accessKey:  accessKey,
		refreshKey: refreshKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue signs an access/refresh pair from the same claim set. The pair is
// created atomically: if either signature fails, no tokens are returned.
func (s *Service) Issue(p Payload) (types.TokenPair, error) {
	now := s.now()

	access, err := s.sign(p, s.accessKey, now, now.Add(s.accessTTL))
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.sign(p, s.refreshKey, now, now.Add(s.refreshTTL))
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return types.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) VerifyAccess(tokenString string) (Payload, error) {
	return s.verify(tokenString, s.accessKey)
}

func (s *Service) VerifyRefresh(tokenString string) (Payload, error) {
	return s.verify(tokenString, s.refreshKey)
}

// Rotate verifies a refresh token and issues a fresh pair from its
// application claims. Rotation is stateless: there is no server-side
// revocation list, so an already-issued refresh token stays valid until it
// expires. Logout is enforced at the application layer instead.
func (s *Service) Rotate(refreshToken string) (types.TokenPair, error) {
	p, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return types.TokenPair{}, err
	}

	return s.Issue(p)
}

func (s *Service) sign(p Payload, key []byte, iat, exp time.Time) (string, error) {
	claims := Claims{
		UserId:       p.UserId,
		Email:        p.Email,
		Username:     p.Username,
		TokenVersion: p.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (s *Service) verify(tokenString string, key []byte) (Payload, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, fmt.Errorf("%w: %s", ErrTokenExpired, err)
		}
		return Payload{}, fmt.Errorf("%w: %s", ErrTokenInvalid, err)
	}

	if !token.Valid || claims.UserId == 0 {
		return Payload{}, ErrTokenInvalid
	}

	return Payload{
		UserId:       claims.UserId,
		Email:        claims.Email,
		Username:     claims.Username,
		TokenVersion: claims.TokenVersion,
	}, nil
}

// DecodeUnverified decodes a token's claims without checking the signature.
// It is used by clients to inspect their own access token locally, and
// performs only structural validation: segment count, required claims and a
// sane exp/iat relationship. Structural failures are reported as
// ErrTokenInvalid.
func DecodeUnverified(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrTokenInvalid, len(parts))
	}

	seg, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode claims segment: %s", ErrTokenInvalid, err)
	}

	var claims Claims
	if err := json.Unmarshal(seg, &claims); err != nil {
		return nil, fmt.Errorf("%w: unmarshal claims: %s", ErrTokenInvalid, err)
	}

	if claims.UserId == 0 || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: exp is not after iat", ErrTokenInvalid)
	}

	return &claims, nil
}
