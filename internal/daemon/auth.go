package daemon

import (
	"crypto/subtle"
	"net/http"
)

// AdminPinHeader carries the operator PIN on admin routes.
const AdminPinHeader = "X-Admin-Pin"

// pinMiddleware rejects requests whose X-Admin-Pin header does not match pin.
// If pin is empty, no check is made and all requests pass through.
func (s *apiServer) pinMiddleware(pin string, next http.HandlerFunc) http.HandlerFunc {
	if pin == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(AdminPinHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(pin)) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "kind": "unauthorized"})
			return
		}
		next(w, r)
	}
}
