package directory

import "context"

// Principal is a registered identity: an opaque stable id plus the email the
// billing system is keyed on.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client is the read-only capability consumed from the identity directory.
type Client interface {
	// ListPrincipals pages through the full user directory and returns every
	// registered principal.
	ListPrincipals(ctx context.Context) ([]Principal, error)
}

// TokenVerifier resolves a bearer token to the principal it identifies.
type TokenVerifier interface {
	VerifyToken(token string) (*Principal, error)
}
