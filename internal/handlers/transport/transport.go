// Package transport moves tokens between HTTP messages and the auth service.
// Access token travels in the Authorization header, refresh token in an HttpOnly cookie.
package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/contestgate/internal/models"
)

const (
	AccessHeaderName  = "Authorization"
	AccessAuthScheme  = "Bearer"
	RefreshCookieName = "refresh_token"
)

// AccessToken returns the bearer token from the request, empty if absent
func AccessToken(r *http.Request) string {
	header := r.Header.Get(AccessHeaderName)

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, AccessAuthScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// RefreshToken returns the refresh token cookie value, empty if absent
func RefreshToken(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetTokens writes access token to response header and refresh token to cookie
func SetTokens(w http.ResponseWriter, pair models.TokenPair, now time.Time) {
	w.Header().Set(AccessHeaderName, AccessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		Expires:  pair.Refresh.ExpiresAt,
		MaxAge:   int(pair.Refresh.ExpiresAt.Sub(now).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefresh asks the client to drop the refresh cookie
func ClearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
