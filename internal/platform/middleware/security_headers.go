package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig controls the headers that depend on how the API is deployed.
type SecurityConfig struct {
	// HSTS is only sent when the API is served over TLS.
	HSTS bool
	// DownloadPrefixes are paths serving stored documents. They may be
	// rendered inline, so they get a sandboxing CSP instead of the API one.
	DownloadPrefixes []string
}

const (
	apiCSP      = "default-src 'none'; frame-ancestors 'none'"
	downloadCSP = "default-src 'none'; sandbox; frame-ancestors 'none'"
)

// SecurityHeaders sets the response headers of an API that serves PHI. No
// response may be cached by a browser or intermediary.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			csp := apiCSP
			for _, prefix := range cfg.DownloadPrefixes {
				if strings.HasPrefix(c.Request().URL.Path, prefix) {
					csp = downloadCSP
					break
				}
			}
			h.Set("Content-Security-Policy", csp)
			return next(c)
		}
	}
}
