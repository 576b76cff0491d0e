package service

import (
	"net/http"
	"strings"
	"time"

	"github.com/milk-back/backend/internal/model"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
	SessionCookieName = "session_id"

	// SessionCookieMaxAge is one year; the cookie lifetime is not a trust boundary.
	SessionCookieMaxAge = 31536000
)

// CookieConfig holds the attributes shared by every auth cookie.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func (c CookieConfig) normalized() CookieConfig {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteStrictMode
	}
	return c
}

// Set writes an httpOnly cookie valid for maxAge seconds.
func (c CookieConfig) Set(w http.ResponseWriter, name, value string, maxAge int) {
	cfg := c.normalized()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: cfg.SameSite,
	})
}

// Clear expires the cookie on the client.
func (c CookieConfig) Clear(w http.ResponseWriter, name string) {
	cfg := c.normalized()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: cfg.SameSite,
	})
}

// ReadTokenCookies returns the token pair carried by the request. The refresh
// cookie is required; the access cookie may be missing once the browser has
// expired it, in which case AccessToken is empty.
func ReadTokenCookies(r *http.Request) (model.TokenPair, bool) {
	refresh, err := r.Cookie(RefreshCookieName)
	if err != nil || refresh.Value == "" {
		return model.TokenPair{}, false
	}
	pair := model.TokenPair{RefreshToken: refresh.Value}
	if access, err := r.Cookie(AccessCookieName); err == nil {
		pair.AccessToken = access.Value
	}
	return pair, true
}
