package session

import (
	"net/http"
	"time"
)

// SessionCookie builds the session cookie: __Host-prefixed, HttpOnly,
// Secure, SameSite=Strict, path "/". Host-prefix rules forbid Domain and
// require Secure + Path=/.
func (s *Service) SessionCookie(value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     s.config.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// CsrfCookie builds the CSRF cookie. Deliberately not HttpOnly: page
// scripts must read it to echo the value back in the CSRF header on
// mutating requests.
func (s *Service) CsrfCookie(value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     s.config.CsrfCookie,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: false,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookies builds expired cookies for logout responses.
func (s *Service) ClearCookies() []*http.Cookie {
	expired := time.Unix(0, 0)
	return []*http.Cookie{
		{
			Name:     s.config.CookieName,
			Value:    "",
			Path:     "/",
			Expires:  expired,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		{
			Name:     s.config.CsrfCookie,
			Value:    "",
			Path:     "/",
			Expires:  expired,
			MaxAge:   -1,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
	}
}

// CookieName returns the configured session cookie name.
func (s *Service) CookieName() string {
	return s.config.CookieName
}

// CsrfHeader returns the header name mutating requests must echo the CSRF
// cookie value in.
func (s *Service) CsrfHeader() string {
	return s.config.CsrfHeader
}
