package account_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/clock/timecop"

	"plangrid/domain/account"
)

func TestTokenIssuer(t *testing.T) {
	s := testcase.NewSpec(t)

	issuer := testcase.Let(s, func(t *testcase.T) *account.TokenIssuer {
		return &account.TokenIssuer{Secret: []byte(t.Random.String()), TTL: time.Hour}
	})

	s.Test("issued tokens verify to their username", func(t *testcase.T) {
		token, err := issuer.Get(t).Issue("alice")
		assert.Must(t).NoError(err)
		username, err := issuer.Get(t).Verify(token)
		assert.Must(t).NoError(err)
		assert.Must(t).Equal("alice", username)
	})

	s.Test("expired tokens are rejected", func(t *testcase.T) {
		token, err := issuer.Get(t).Issue("alice")
		assert.Must(t).NoError(err)
		timecop.Travel(t, 2*time.Hour)
		_, err = issuer.Get(t).Verify(token)
		assert.Must(t).ErrorIs(account.ErrInvalidToken, err)
	})

	s.Test("tokens signed with another secret are rejected", func(t *testcase.T) {
		other := account.TokenIssuer{Secret: []byte("other"), TTL: time.Hour}
		token, err := other.Issue("alice")
		assert.Must(t).NoError(err)
		_, err = issuer.Get(t).Verify(token)
		assert.Must(t).ErrorIs(account.ErrInvalidToken, err)
	})

	s.Test("unsigned tokens are rejected", func(t *testcase.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.Must(t).NoError(err)
		_, err = issuer.Get(t).Verify(token)
		assert.Must(t).ErrorIs(account.ErrInvalidToken, err)
	})

	s.Test("garbage is rejected", func(t *testcase.T) {
		_, err := issuer.Get(t).Verify(t.Random.String())
		assert.Must(t).ErrorIs(account.ErrInvalidToken, err)
	})
}
