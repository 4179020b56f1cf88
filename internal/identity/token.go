package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eduhub/pkg/types"
)

// TokenVerifier checks HS256 identity tokens issued by the marketplace
// backend. The sub claim carries the external ID.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}, nil
}

// Verify validates token and returns its subject.
func (v *TokenVerifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", types.ErrAuthenticationFailure, ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: %w", types.ErrAuthenticationFailure, ErrMissingSubject)
	}
	return claims.Subject, nil
}

// Issue signs a token for externalID valid for ttl. The token command and
// tests use it to mint credentials the way the backend does.
func (v *TokenVerifier) Issue(externalID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   externalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
