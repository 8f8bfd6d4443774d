package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/procuregov/authcore"
)

// Authenticator is the part of the engine the authentication middleware
// needs.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*authcore.Identity, error)
}

// Authenticate returns middleware that requires a valid bearer access token
// and attaches the resulting identity with [authcore.WithIdentity].
func Authenticate(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, authcore.ErrMissingCredential)
				return
			}

			id, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}
			notePrincipal(r.Context(), id.PrincipalID)

			next.ServeHTTP(w, r.WithContext(authcore.WithIdentity(r.Context(), id)))
		})
	}
}

// AuthenticateOptional attaches an identity when the request carries a valid
// token and passes every request through.
func AuthenticateOptional(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine != nil {
				if token, ok := BearerToken(r); ok {
					if id, err := engine.Authenticate(r.Context(), token); err == nil {
						notePrincipal(r.Context(), id.PrincipalID)
						r = r.WithContext(authcore.WithIdentity(r.Context(), id))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits identities holding any of roles. It must run after
// [Authenticate]; a request without an identity gets 401, a role outside
// the set gets 403.
func RequireRole(roles ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authcore.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, authcore.ErrMissingCredential)
				return
			}
			if !id.HasRole(roles...) {
				WriteError(w, authcore.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
