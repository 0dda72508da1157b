package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"blackout/internal/core"
	"blackout/internal/log"
)

type ownerKey struct{}

// WithOwner returns a context carrying the authenticated owner.
func WithOwner(ctx context.Context, owner core.OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the owner stored by Middleware.
func OwnerFromContext(ctx context.Context) (core.OwnerID, bool) {
	owner, ok := ctx.Value(ownerKey{}).(core.OwnerID)
	return owner, ok && owner > 0
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the token's owner in the request context otherwise.
func Middleware(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r, "authorization token not provided")
				return
			}
			owner, err := tokens.Verify(raw)
			if err != nil {
				unauthorized(w, r, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).
		WarnContext(r.Context(), "Request rejected", log.FieldPath, r.URL.Path, log.FieldError, msg)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="blackout"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
