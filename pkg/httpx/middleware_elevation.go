package httpx

import (
	"net/http"
	"time"
)

// RequireElevation gates a handler on a fresh step-up grant. The caller must
// already have passed AuthnMiddleware. A token whose elevation is absent or
// older than window is treated as not elevated and the request is refused
// without terminating the session.
func RequireElevation(window time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromCtx(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if !claims.HasElevation(window, time.Now()) {
				code := "elevation_required"
				desc := "step-up verification required"
				if claims.Elevated {
					code = "elevation_expired"
					desc = "step-up grant has expired"
				}
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             code,
					"error_description": desc,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
