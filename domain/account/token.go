package account

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/testcase/clock"
)

const ErrInvalidToken errorkit.Error = "Invalid or expired token"

// TokenIssuer signs HS256 access tokens whose subject is the username.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
}

func (ti *TokenIssuer) Issue(username string) (string, error) {
	now := clock.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.TTL)),
		},
		Type: "access",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.Secret)
}

// Verify returns the username of a valid access token.
func (ti *TokenIssuer) Verify(raw string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return ti.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(clock.Now),
		jwt.WithExpirationRequired())
	if err != nil {
		return "", ErrInvalidToken.Wrap(err)
	}
	if claims.Subject == "" || claims.Type != "access" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type accessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}
