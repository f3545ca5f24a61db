package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the management routes with the locally minted
// token. Comparison is constant-time; a missing header and a wrong
// token are indistinguishable to the caller.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httpError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
