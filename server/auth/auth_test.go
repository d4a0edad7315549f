package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
)

const testSecret = "test-secret"

func TestAuthenticateValidToken(t *testing.T) {
	token, err := GenerateAccessToken(42, "ada", RoleUser, time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)

	p, err := NewAuthenticator(testSecret).Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int32(42), p.UserID)
	assert.Equal(t, "ada", p.Username)
	assert.Equal(t, RoleUser, p.Role)
	assert.False(t, p.IsAdmin())
}

func TestAuthenticateRoles(t *testing.T) {
	a := NewAuthenticator(testSecret)

	admin, err := GenerateAccessToken(1, "root", RoleAdmin, time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)
	p, err := a.Authenticate(context.Background(), admin)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())

	// Tokens without a role claim are regular users.
	plain, err := GenerateAccessToken(2, "", "", time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)
	p, err = a.Authenticate(context.Background(), plain)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, p.Role)

	forged, err := GenerateAccessToken(3, "", Role("SUPERUSER"), time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)
	_, err = a.Authenticate(context.Background(), forged)
	assert.True(t, chaterrors.IsCode(err, chaterrors.ErrCodeUnauthorized))

	var nobody *Principal
	assert.False(t, nobody.IsAdmin())
}

func TestAuthenticateRejects(t *testing.T) {
	expired, err := GenerateAccessToken(1, "", "", time.Now().Add(-time.Minute), []byte(testSecret))
	require.NoError(t, err)
	wrongSecret, err := GenerateAccessToken(1, "", "", time.Now().Add(time.Hour), []byte("other"))
	require.NoError(t, err)

	// Signed correctly but not an access token.
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:   "someone-else",
		Subject:  "1",
		Audience: jwt.ClaimStrings{AccessTokenAudienceName},
	})
	foreign.Header["kid"] = KeyID
	foreignToken, err := foreign.SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:   Issuer,
		Subject:  "not-a-number",
		Audience: jwt.ClaimStrings{AccessTokenAudienceName},
	})
	badSubject.Header["kid"] = KeyID
	badSubjectToken, err := badSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"wrong issuer", foreignToken},
		{"bad subject", badSubjectToken},
	}

	a := NewAuthenticator(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Authenticate(context.Background(), tt.token)
			assert.Nil(t, p)
			assert.True(t, chaterrors.IsCode(err, chaterrors.ErrCodeUnauthorized))
		})
	}
}

func TestAuthenticateWithoutSecret(t *testing.T) {
	token, err := GenerateAccessToken(1, "", "", time.Time{}, []byte(testSecret))
	require.NoError(t, err)

	_, err = NewAuthenticator("").Authenticate(context.Background(), token)
	assert.True(t, chaterrors.IsCode(err, chaterrors.ErrCodeUnauthorized))
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearerToken("bearer  abc "))
	assert.Equal(t, "", ExtractBearerToken("Basic abc"))
	assert.Equal(t, "", ExtractBearerToken("abc"))
	assert.Equal(t, "", ExtractBearerToken(""))
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetPrincipal(ctx))
	assert.Equal(t, int32(0), GetUserID(ctx))

	ctx = SetPrincipalInContext(ctx, &Principal{UserID: 5})
	assert.Equal(t, int32(5), GetUserID(ctx))
}
