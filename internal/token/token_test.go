package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushcal/internal/model"
)

const secret = "s3cret"

func TestMintVerify(t *testing.T) {
	raw, err := Mint(secret, "1", time.Hour)
	require.NoError(t, err)

	sub, err := NewVerifier(secret).Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, model.SubjectID("1"), sub)
}

func TestVerifyLegacyIDClaim(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": 7}).SignedString([]byte(secret))
	require.NoError(t, err)

	sub, err := NewVerifier(secret).Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, model.SubjectID("7"), sub)
}

func TestVerifyRejects(t *testing.T) {
	good, err := Mint(secret, "1", time.Hour)
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"foo": "bar"}).SignedString([]byte(secret))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		verifier *Verifier
		raw      string
	}{
		"empty":        {NewVerifier(secret), ""},
		"garbage":      {NewVerifier(secret), "not.a.token"},
		"wrong secret": {NewVerifier("other"), good},
		"no secret":    {NewVerifier(""), good},
		"expired":      {NewVerifier(secret), expired},
		"no subject":   {NewVerifier(secret), noSubject},
		"alg none":     {NewVerifier(secret), none},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.verifier.Verify(tc.raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMintRejectsEmptyInput(t *testing.T) {
	_, err := Mint("", "1", 0)
	assert.Error(t, err)
	_, err = Mint(secret, "", 0)
	assert.Error(t, err)
}
