// Package auth verifies access tokens and carries the authenticated user
// through request contexts.
package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// Issuer is the issuer of access tokens.
	Issuer = "chatrelay"
	// KeyID is the key id stamped into token headers.
	KeyID = "v1"
	// AccessTokenAudienceName is the audience of access tokens.
	AccessTokenAudienceName = "user.access-token"
	// AccessTokenDuration is the default lifetime of an access token.
	AccessTokenDuration = 24 * time.Hour
)

// Role is the user role carried in an access token.
type Role string

const (
	// RoleUser is a regular chat user.
	RoleUser Role = "USER"
	// RoleAdmin may inspect and lift origin blocks.
	RoleAdmin Role = "ADMIN"
)

// UserClaims are the claims carried by an access token.
type UserClaims struct {
	UserID   int32  `json:"-"`
	Username string `json:"name,omitempty"`
	Role     Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an HS256 access token for userID.
// Token minting belongs to the identity service; this exists for tests and tooling.
func GenerateAccessToken(userID int32, username string, role Role, expiresAt time.Time, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   Issuer,
		Subject:  strconv.FormatInt(int64(userID), 10),
		Audience: jwt.ClaimStrings{AccessTokenAudienceName},
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &UserClaims{
		Username:         username,
		Role:             role,
		RegisteredClaims: claims,
	})
	token.Header["kid"] = KeyID

	return token.SignedString(secret)
}

// ParseAccessToken verifies signature, issuer, audience and expiry and
// returns the token's claims.
func ParseAccessToken(tokenString string, secret []byte) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if kid, ok := t.Header["kid"].(string); ok && kid != KeyID {
				return nil, errors.Errorf("unexpected kid: %v", t.Header["kid"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(AccessTokenAudienceName),
	)
	if err != nil {
		return nil, errors.Wrap(err, "invalid access token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 32)
	if err != nil || userID <= 0 {
		return nil, errors.Errorf("invalid subject %q", claims.Subject)
	}
	claims.UserID = int32(userID)
	switch claims.Role {
	case "":
		claims.Role = RoleUser
	case RoleUser, RoleAdmin:
	default:
		return nil, errors.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}
