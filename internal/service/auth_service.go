package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"flowbar/backend/internal/clock"
	apperrors "flowbar/backend/internal/errors"
)

// AuthService pairs local clients (the extension, flowbarctl) with the
// daemon. A client proves it knows the pairing secret once and receives a
// bearer token. With no secret configured pairing is disabled and every
// request is accepted.
type AuthService struct {
	secretHash []byte
	jwtSecret  []byte
	tokenTTL   time.Duration
	clock      clock.Clock
}

type PairResult struct {
	Token     string    `json:"token"`
	Client    string    `json:"client"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewAuthService(pairingSecret, jwtSecret string, tokenTTL time.Duration, c clock.Clock) (*AuthService, error) {
	s := &AuthService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		clock:     c,
	}
	if len(s.jwtSecret) == 0 {
		s.jwtSecret = []byte(uuid.NewString())
	}
	if pairingSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pairingSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.secretHash = hash
	}
	return s, nil
}

// Enabled reports whether requests need a bearer token.
func (s *AuthService) Enabled() bool {
	return len(s.secretHash) > 0
}

func (s *AuthService) Pair(_ context.Context, client, secret string) (*PairResult, *apperrors.APIError) {
	client = strings.TrimSpace(client)
	if client == "" {
		return nil, apperrors.BadRequest("invalid_client", "client is required")
	}
	if !s.Enabled() {
		return nil, apperrors.Conflict("pairing_disabled", "pairing is disabled on this daemon", nil)
	}
	if secret == "" || bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)) != nil {
		return nil, apperrors.Unauthorized("invalid pairing secret")
	}

	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   client,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, apperrors.Internal("failed to sign token")
	}
	return &PairResult{Token: signed, Client: client, ExpiresAt: expiresAt}, nil
}

// ParseToken validates a bearer token and returns the paired client name.
func (s *AuthService) ParseToken(tokenString string) (string, *apperrors.APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid {
		return "", apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", apperrors.Unauthorized("invalid token")
	}

	if claims.Subject == "" {
		return "", apperrors.Unauthorized("invalid token subject")
	}

	return claims.Subject, nil
}
