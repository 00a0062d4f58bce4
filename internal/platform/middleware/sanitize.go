package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	maxHeaderValueSize = 8192
	maxSearchLength    = 200
)

// paramRule validates one query parameter before any handler sees it.
type paramRule struct {
	pattern *regexp.Regexp
	message string
}

var (
	idRule   = paramRule{regexp.MustCompile(`^[1-9][0-9]{0,18}$`), "must be a positive numeric id"}
	codeRule = paramRule{regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`), "must be a lower-case code"}
	timeRule = paramRule{regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}([T ][0-9:.]+(Z|[+-][0-9:]+)?)?$`), "must be a date or RFC 3339 time"}
	flagRule = paramRule{regexp.MustCompile(`^(?i:t|f|true|false|1|0)$`), "must be true or false"}
)

// queryRules covers the filters the API understands. Unlisted parameters
// only get the generic checks.
var queryRules = map[string]paramRule{
	"client_id":        idRule,
	"provider_id":      idRule,
	"author_id":        idRule,
	"supervisor_id":    idRule,
	"user_id":          idRule,
	"note_id":          idRule,
	"appointment_id":   idRule,
	"status":           codeRule,
	"note_type":        codeRule,
	"role":             codeRule,
	"scope":            codeRule,
	"priority":         codeRule,
	"from":             timeRule,
	"to":               timeRule,
	"date":             timeRule,
	"active":           flagRule,
	"include_inactive": flagRule,
	"inline":           flagRule,
}

var (
	// Logged only; every query is parameterised.
	sqlPatterns = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	scriptPatterns = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize is SanitizeWithLogger without logging.
func Sanitize() echo.MiddlewareFunc {
	return SanitizeWithLogger(zerolog.Nop())
}

// SanitizeWithLogger rejects malformed paths, headers and query parameters
// with 400. Known filters such as client_id or note_type must match their
// format; the free-text q search is length limited.
func SanitizeWithLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if err := checkPath(req.URL); err != nil {
				return err
			}
			if err := checkHeaders(req.Header); err != nil {
				return err
			}

			for key, values := range req.URL.Query() {
				if hasNullByte(key) || scriptPatterns.MatchString(key) {
					return badRequest("invalid query parameter name")
				}
				for _, v := range values {
					if err := checkQueryValue(key, v); err != nil {
						return err
					}
					if sqlPatterns.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("potential SQL injection pattern detected in query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

func checkPath(u *url.URL) error {
	for _, p := range []string{u.Path, u.RawPath} {
		lower := strings.ToLower(p)
		if strings.Contains(p, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e") {
			return badRequest("path traversal detected")
		}
		if hasNullByte(p) {
			return badRequest("null byte in path")
		}
	}
	return nil
}

func checkHeaders(h http.Header) error {
	for name, values := range h {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return badRequest("header " + name + " is too large")
			}
			if strings.ContainsAny(v, "\r\n") {
				return badRequest("header " + name + " contains a line break")
			}
		}
	}
	return nil
}

func checkQueryValue(key, v string) error {
	if hasNullByte(v) {
		return badRequest("null byte in query parameter " + key)
	}
	if scriptPatterns.MatchString(v) {
		return badRequest("script content in query parameter " + key)
	}
	if key == "q" && len([]rune(v)) > maxSearchLength {
		return badRequest(fmt.Sprintf("q must be at most %d characters", maxSearchLength))
	}
	if rule, ok := queryRules[key]; ok && v != "" && !rule.pattern.MatchString(v) {
		return badRequest(key + " " + rule.message)
	}
	return nil
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
