package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnauthenticated indicates the request carries no valid principal.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden indicates the principal lacks the required privilege.
	ErrForbidden = errors.New("auth: forbidden")
)

// Principal is the authenticated account a request acts on behalf of.
type Principal struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

type principalContextKey struct{}

// ContextWithPrincipal scopes principal to ctx.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the principal carried by ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || strings.TrimSpace(principal.Username) == "" {
		return Principal{}, false
	}
	return principal, true
}

// RequirePrincipal fails unless ctx carries an authenticated principal.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	return principal, nil
}

// RequireAdmin fails unless ctx carries an administrator.
func RequireAdmin(ctx context.Context) (Principal, error) {
	principal, err := RequirePrincipal(ctx)
	if err != nil {
		return Principal{}, err
	}
	if !principal.Admin {
		return Principal{}, ErrForbidden
	}
	return principal, nil
}

// IsAuthorizationError reports whether err stems from a failed principal check.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrForbidden)
}
