package httptransport

import (
	"errors"
	"net/http"
)

var ErrUnauthenticated = errors.New("http: missing user identity")

// User is the already-authenticated caller as reported by the auth
// collaborator. This core trusts it and never validates credentials itself.
type User struct {
	ID   string
	Role string
}

// Identity resolves the current user for a request.
type Identity interface {
	CurrentUser(r *http.Request) (User, error)
}

// HeaderIdentity reads the identity an upstream auth proxy injects into
// request headers.
type HeaderIdentity struct{}

func (HeaderIdentity) CurrentUser(r *http.Request) (User, error) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return User{}, ErrUnauthenticated
	}
	role := r.Header.Get("X-User-Role")
	if role == "" {
		role = "buyer"
	}
	return User{ID: id, Role: role}, nil
}
