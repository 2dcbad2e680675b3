package gateway

import "net/http"

// requireAPIKey guards next with the shared-secret header check. An
// empty configured secret disables the check entirely (dev mode), per
// the component design's auth rule.
func requireAPIKey(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	if apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid X-API-KEY")
			return
		}
		next(w, r)
	}
}
