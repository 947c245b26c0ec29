// Package authn verifies bearer tokens presented to the REST auxiliaries.
// Token issuance is out of scope for this engine — callers authenticate
// against whatever identity provider issued the token, and this package
// only checks that the token is well-formed, signed with the configured
// secret, and unexpired.
package authn

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quizengine/session-engine/internal/config"
)

var (
	ErrInvalidToken = errors.New("authn: token is invalid")
	ErrExpiredToken = errors.New("authn: token has expired")
)

// Claims is the subset of a bearer token's claims this engine consumes:
// the caller's user id, carried as a plain string since the engine's own
// identities (session codes, user ids) are opaque strings rather than
// uuid.UUID.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against a single configured secret.
type Verifier struct {
	cfg config.JWTConfig
}

// NewVerifier constructs a Verifier bound to the engine's JWT config.
func NewVerifier(cfg config.JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify parses and validates tokenString, returning its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if v.cfg.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != v.cfg.Issuer {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}
