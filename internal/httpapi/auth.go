package httpapi

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
)

// AuthMiddleware guards the API with the X-API-Key header. The expected key
// comes from WO_IMPORT_API_KEY; with no key configured the API is open.
func AuthMiddleware(next http.Handler) http.Handler {
	expected := []byte(os.Getenv("WO_IMPORT_API_KEY"))
	if len(expected) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := []byte(r.Header.Get("X-API-Key"))
		if len(provided) != len(expected) ||
			subtle.ConstantTimeCompare(provided, expected) != 1 {
			log.Printf("Rejected unauthenticated request: %s %s", r.Method, r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
