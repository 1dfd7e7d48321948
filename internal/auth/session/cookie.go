// Package session carries the portal session token between the browser and the server.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portal/internal/config"
	"go.uber.org/fx"
)

const DefaultCookieName = "portal_session"

var Module = fx.Module("auth.session",
	fx.Provide(NewCookies),
)

// Cookies reads and writes the HttpOnly session cookie. Only the raw token
// travels in the cookie; the server keeps its hash.
type Cookies struct {
	name   string
	secure bool
}

func NewCookies(cfg config.Config) *Cookies {
	name := strings.TrimSpace(cfg.AuthCookieName)
	if name == "" {
		name = DefaultCookieName
	}
	return &Cookies{name: name, secure: cfg.AuthCookieSecure}
}

func (k *Cookies) Name() string {
	return k.name
}

func (k *Cookies) Token(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(k.name)
	if err != nil {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// Write stores token until expiresAt, measured against now.
func (k *Cookies) Write(c *gin.Context, token string, expiresAt, now time.Time) {
	ttl := expiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	k.put(c, token, int(ttl/time.Second))
}

func (k *Cookies) Clear(c *gin.Context) {
	k.put(c, "", -1)
}

func (k *Cookies) put(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(k.name, value, maxAge, "/", "", k.secure, true)
}
