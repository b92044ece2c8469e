package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authenticator validates a caller's access token and returns its Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// Principal identifies who is talking to the agent.
type Principal struct {
	Subject string
	Label   string
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// AccessCodeHeader carries the access code for clients that cannot set Authorization.
const AccessCodeHeader = "X-Access-Code"

// ExtractToken reads the caller's token from the Authorization bearer
// header, falling back to AccessCodeHeader. An empty string means none was sent.
func ExtractToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		v = strings.TrimPrefix(v, "Bearer ")
		v = strings.TrimPrefix(v, "bearer ")
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(r.Header.Get(AccessCodeHeader))
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the Principal set by WithPrincipal, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}
