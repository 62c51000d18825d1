package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	token, err := svc.Issue(42, RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Equal(t, RoleAdmin, principal.Role)
}

func TestTokenTamperedSignature(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	token, err := svc.Issue(1, RoleUser)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	// flip one character of the signature segment
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.Verify(tampered)
	require.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenService([]byte("secret-a"), time.Hour)
	verifier := NewTokenService([]byte("secret-b"), time.Hour)

	token, err := issuer.Issue(1, RoleUser)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), -time.Minute)

	token, err := svc.Issue(1, RoleUser)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenMalformed(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	for _, bad := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := svc.Verify(bad)
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", bad)
	}
}

func TestHashPassword(t *testing.T) {
	h1, err := hashPassword("pw1")
	require.NoError(t, err)
	h2, err := hashPassword("pw1")
	require.NoError(t, err)

	// fresh salt per call
	assert.NotEqual(t, h1, h2)

	assert.True(t, comparePassword(h1, "pw1"))
	assert.True(t, comparePassword(h2, "pw1"))
	assert.False(t, comparePassword(h1, "pw2"))
}

func TestComparePasswordMalformedDigest(t *testing.T) {
	assert.False(t, comparePassword("not-a-bcrypt-digest", "pw1"))
	assert.False(t, comparePassword("", "pw1"))
}

func TestCanModify(t *testing.T) {
	owner := Principal{UserID: 1, Role: RoleUser}
	other := Principal{UserID: 2, Role: RoleUser}
	admin := Principal{UserID: 3, Role: RoleAdmin}

	assert.True(t, canModify(owner, 1))
	assert.False(t, canModify(other, 1))
	assert.True(t, canModify(admin, 1))
}
