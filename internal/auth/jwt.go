package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNoSecret means the manager was constructed without signing
	// material for the requested token kind. Handlers surface this as a
	// server misconfiguration, never as a client error.
	ErrNoSecret     = errors.New("signing secret not configured")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	UserID    string `json:"sub"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// Manager issues and verifies access and refresh tokens. Secrets and
// lifetimes are fixed at construction; it never reads the environment.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *Manager) GenerateAccessToken(userID string) (string, error) {
	return m.generate(userID, "access", m.accessSecret, m.accessTTL)
}

func (m *Manager) GenerateRefreshToken(userID string) (string, error) {
	return m.generate(userID, "refresh", m.refreshSecret, m.refreshTTL)
}

func (m *Manager) generate(userID, typ string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}

	now := time.Now().UTC()

	claims := Claims{
		UserID:    userID,
		TokenType: typ,
		JTI:       uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(secret)
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, "access", m.accessSecret)
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, "refresh", m.refreshSecret)
}

// verify collapses every parse failure (bad signature, expired,
// malformed, wrong type) into ErrInvalidToken so callers cannot leak
// which check failed.
func (m *Manager) verify(tokenStr, typ string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != typ {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
