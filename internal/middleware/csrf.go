package middleware

import (
	"crypto/sha256"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFHeader is the header HTMX sends the token in.
const CSRFHeader = "X-CSRF-Token"

// CSRF protects the cookie-authenticated HTML routes. The 32-byte key is derived
// from secret. Requests that did not arrive over TLS (directly or via a proxy) are
// marked plaintext so the origin check does not demand an https Referer.
func CSRF(secret string, secure bool, trustedOrigins []string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte("habitual-csrf:" + secret))

	protect := csrf.Protect(key[:],
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.FieldName("csrf_token"),
		csrf.TrustedOrigins(trustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf rejected", "path", r.URL.Path, "reason", csrf.FailureReason(r), "remote", RealIP(r))
			http.Error(w, "Forbidden - invalid CSRF token", http.StatusForbidden)
		})),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}
