package mw

import (
	"net/http"

	"github.com/jmylchreest/matchgenius-api/internal/version"
)

// APIVersion returns middleware that adds the X-API-Version header to all responses.
// The web client logs it alongside failed subscription fetches.
func APIVersion() func(http.Handler) http.Handler {
	apiVersion := version.Get().Short()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API-Version", apiVersion)
			next.ServeHTTP(w, r)
		})
	}
}
