package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Patterns are applied in this order: ids, emails, then phone numbers, since
// the phone pattern would otherwise match digit runs inside a UUID.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

const redactedValue = "[REDACTED]"

// redactor scrubs obvious PII from log fields and masks sensitive headers.
type redactor struct {
	masked map[string]struct{}
}

func newRedactor(extraMasked []string) redactor {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range extraMasked {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}
	return redactor{masked: masked}
}

// scrub replaces ids, emails and phone numbers in s with typed placeholders.
// Input is NFKC-folded first so full-width digits and separators cannot slip
// past the ASCII patterns.
func (r redactor) scrub(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFKC.String(s)
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// headers returns a flattened copy of h safe for logging.
func (r redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = redactedValue
			continue
		}
		out[k] = r.scrub(strings.Join(vv, ", "))
	}
	return out
}
