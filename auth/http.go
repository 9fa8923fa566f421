package auth

import (
	"net/http"
	"strings"
)

// CookieName is the cookie read when no Authorization header is present.
const CookieName = "access_token"

// TokenFromRequest extracts the bearer token of an HTTP request, header first, then cookie.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		// Expecting the standard "Bearer <token>" format
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
