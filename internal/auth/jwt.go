package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EdgeIdentity is what a verified edge token asserts: which runner is
// connecting and which workspace it is allowed to operate in.
type EdgeIdentity struct {
	EdgeID    string
	Workspace string
	Name      string
}

// JWTService signs and verifies the HS256 tokens edge runners use.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a JWT helper with the given shared secret and
// token lifetime. A non-positive expiry issues tokens without an
// expiration claim.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry}
}

type edgeClaims struct {
	Workspace string `json:"workspace,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Generate issues a signed token asserting id.
func (s *JWTService) Generate(id EdgeIdentity) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(id.EdgeID) == "" {
		return "", errors.New("edge id required")
	}

	claims := edgeClaims{
		Workspace: strings.TrimSpace(id.Workspace),
		Name:      strings.TrimSpace(id.Name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.EdgeID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
		},
	}
	if s.expiry <= 0 {
		claims.ExpiresAt = nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token and returns the identity inside it.
func (s *JWTService) Validate(token string) (*EdgeIdentity, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &edgeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*edgeClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &EdgeIdentity{
		EdgeID:    claims.Subject,
		Workspace: claims.Workspace,
		Name:      claims.Name,
	}, nil
}
