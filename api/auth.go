package api

import (
	"context"
	"net/http"

	goRecover "github.com/MrEthical07/goRecover"
)

type contextKey string

const authContextKey contextKey = "goRecover/api.auth"

// requireAuth resolves the bearer token to a live session and stores the
// result on the request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (*goRecover.AuthResult, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}

	auth, err := a.engine.Validate(r.Context(), token)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	return auth, true
}

func authFromContext(r *http.Request) *goRecover.AuthResult {
	auth, _ := r.Context().Value(authContextKey).(*goRecover.AuthResult)
	return auth
}
