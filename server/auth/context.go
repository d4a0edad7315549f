package auth

import "context"

type contextKey int

const (
	// principalContextKey is the key for the authenticated principal.
	principalContextKey contextKey = iota
)

// SetPrincipalInContext returns a copy of ctx carrying p.
func SetPrincipalInContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// GetUserID returns the authenticated user id, or 0 when unauthenticated.
func GetUserID(ctx context.Context) int32 {
	if p := GetPrincipal(ctx); p != nil {
		return p.UserID
	}
	return 0
}
