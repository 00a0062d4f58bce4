package phi

import (
	"strings"
	"unicode"
)

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LastFour returns the last four digits of an identifier such as an SSN.
func LastFour(s string) string {
	d := digits(s)
	if len(d) < 4 {
		return ""
	}
	return d[len(d)-4:]
}

// MaskSSN renders an SSN as ***-**-1234. Values without four digits mask fully.
func MaskSSN(ssn string) string {
	last := LastFour(ssn)
	if last == "" {
		if ssn == "" {
			return ""
		}
		return "***-**-****"
	}
	return "***-**-" + last
}

// NormalizeSSN strips formatting and reports whether nine digits remain.
func NormalizeSSN(ssn string) (string, bool) {
	d := digits(ssn)
	return d, len(d) == 9
}
