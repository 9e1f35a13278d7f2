package session

import "context"

// IdentityProvider resolves the verified identity of the current
// requester. Implementations typically read an auth token or platform
// session from the context; the library only consumes the resolved
// identity string and never performs verification itself.
type IdentityProvider interface {
	Identity(ctx context.Context) (string, error)
}

// IdentityFunc adapts a function to the IdentityProvider interface.
type IdentityFunc func(ctx context.Context) (string, error)

// Identity implements IdentityProvider.
func (f IdentityFunc) Identity(ctx context.Context) (string, error) { return f(ctx) }
