package auth

import (
	"net/http"
	"time"
)

// Cookie slot names. The token kind inside must match the slot it is read
// from; a refresh token in the access slot is rejected.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
	VerifyCookie  = "verify_register_token"
)

func SetAccessCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
}

func SetRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
	})
}

func SetVerifyCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     VerifyCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
}

// ClearSessionCookies drops both token slots. Used by logout and when a
// blocked session is detected.
func ClearSessionCookies(w http.ResponseWriter) {
	expireCookie(w, AccessCookie)
	expireCookie(w, RefreshCookie)
}

func ClearVerifyCookie(w http.ResponseWriter) {
	expireCookie(w, VerifyCookie)
}

func expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// ReadCookie returns the cookie value or "" when the slot is empty.
func ReadCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
