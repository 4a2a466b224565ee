package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken occurs when a token fails signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// TokenPair carries a short-lived access token and a longer refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService builds a TokenService around an HMAC secret.
func NewTokenService(secret, issuer string) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		now:        time.Now,
	}
}

type claims struct {
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Issue produces an access/refresh token pair for a user.
func (s *TokenService) Issue(userID string) (TokenPair, error) {
	access, err := s.sign(userID, "access", s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(userID, "refresh", s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) sign(userID, use string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// VerifyAccess validates an access token and returns the subject user ID.
func (s *TokenService) VerifyAccess(raw string) (string, error) {
	return s.verify(raw, "access")
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *TokenService) Refresh(raw string) (TokenPair, error) {
	userID, err := s.verify(raw, "refresh")
	if err != nil {
		return TokenPair{}, err
	}
	return s.Issue(userID)
}

func (s *TokenService) verify(raw, use string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.TokenUse != use || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
