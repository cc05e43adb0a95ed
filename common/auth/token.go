package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrSecretNotConfigured = errors.New("JWT secret not configured")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

// TokenParser validates HMAC-signed JWTs issued by the auth service.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &TokenParser{}
	}
	return &TokenParser{secret: []byte(secret)}
}

// Parse returns the claims of a valid token. If expectedType is non-empty,
// the "typ" claim must match it.
func (p *TokenParser) Parse(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if p == nil || p.secret == nil {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
		}
	}
	return claims, nil
}

// Sign issues an HS256 token for claims. Used by tooling and tests.
func (p *TokenParser) Sign(claims jwt.MapClaims) (string, error) {
	if p == nil || p.secret == nil {
		return "", ErrSecretNotConfigured
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
