package auth

import (
	"context"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	authContextKey contextKey = "auth_context"
	identityKey    contextKey = "client_identity"
)

// ContextWithAuth adds AuthContext to the context.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext retrieves AuthContext from the context.
// Returns nil if not present.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// AccountIDFromContext returns the authenticated account ID or "".
func AccountIDFromContext(ctx context.Context) string {
	auth := AuthFromContext(ctx)
	if auth == nil {
		return ""
	}
	return auth.AccountID
}

// ContextWithIdentity stores the resolved client network identity.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the client network identity or "".
func IdentityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}
