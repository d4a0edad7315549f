package auth

import (
	"context"
	"strings"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   int32
	Username string
	Role     Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Authenticator resolves a bearer token to a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// JWTAuthenticator verifies HS256 access tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret []byte
}

// NewAuthenticator creates a JWTAuthenticator.
func NewAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// Authenticate verifies token and returns its principal. Failures are
// reported as Unauthorized without detail.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, chaterrors.Unauthorized("authentication required")
	}
	if len(a.secret) == 0 {
		return nil, chaterrors.Unauthorized("authentication is not configured")
	}

	claims, err := ParseAccessToken(token, a.secret)
	if err != nil {
		return nil, chaterrors.Wrap(err, chaterrors.ErrCodeUnauthorized, "invalid or expired token")
	}
	return &Principal{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}

// ExtractBearerToken returns the token from an "Authorization: Bearer ..." header value.
func ExtractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
