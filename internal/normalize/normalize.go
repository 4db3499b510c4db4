// Package normalize turns raw scraped strings into canonical contact values.
// Every function is total: absence is reported as a nil pointer, never an error.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	nonDigitPattern = regexp.MustCompile(`\D+`)
	schemePattern   = regexp.MustCompile(`(?i)^https?://`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// roleMailboxes are shared-inbox local parts excluded from subscriber sync.
var roleMailboxes = []string{"support", "info", "admin", "no-reply", "noreply"}

// Phone keeps only the digits of s.
func Phone(s string) *string {
	digits := nonDigitPattern.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	return &digits
}

// Website canonicalises a site address. Values that look like an email are
// rejected because the directory sometimes puts one in the website slot.
func Website(s string) *string {
	v := strings.TrimSpace(s)
	if v == "" || emailPattern.MatchString(v) {
		return nil
	}
	if !schemePattern.MatchString(v) {
		v = "https://" + v
	}
	v = strings.TrimSuffix(v, "/")
	return &v
}

// Email returns the trimmed value when it has a local@domain.tld shape.
func Email(s string) *string {
	v := strings.TrimSpace(s)
	if !emailPattern.MatchString(v) {
		return nil
	}
	return &v
}

// IsValidEmail reports whether s is a syntactically valid, personal address.
func IsValidEmail(s string) bool {
	if !emailPattern.MatchString(s) {
		return false
	}
	local := strings.ToLower(s[:strings.LastIndex(s, "@")])
	for _, role := range roleMailboxes {
		if strings.HasSuffix(local, role) {
			return false
		}
	}
	return true
}

// TaxID strips separators from a NIP. Ten digit values are the norm but any
// digit run is kept so malformed identifiers stay visible downstream.
func TaxID(s string) *string {
	return Phone(s)
}

// IsNIP reports whether s sanitises to exactly ten digits.
func IsNIP(s string) bool {
	digits := TaxID(s)
	return digits != nil && len(*digits) == 10
}

// Text trims s and maps the empty string to nil.
func Text(s string) *string {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return &v
}

// City trims s and folds it to NFC so composed and decomposed Polish
// diacritics compare equal in storage.
func City(s string) *string {
	v := strings.TrimSpace(norm.NFC.String(s))
	if v == "" {
		return nil
	}
	return &v
}
