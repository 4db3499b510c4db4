package normalize

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/idna"
)

// DefaultRegion is the numbering plan assumed for national phone numbers.
const DefaultRegion = "PL"

var idnaProfile = idna.Lookup

// PhoneE164 parses s as a phone number and formats it as E.164. Invalid or
// impossible numbers yield nil.
func PhoneE164(s, region string) *string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return nil
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return nil
	}
	formatted := phonenumbers.Format(number, phonenumbers.E164)
	return &formatted
}

// ASCIIEmail lowercases s and converts its domain to the IDNA ASCII form the
// subscriber API accepts. Addresses whose domain cannot be converted are
// returned lowercased but otherwise untouched.
func ASCIIEmail(s string) string {
	email := strings.ToLower(strings.TrimSpace(s))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return email
	}
	domain := email[at+1:]
	if !isDomainValid(domain) {
		return email
	}
	ascii, err := idnaProfile.ToASCII(domain)
	if err != nil || ascii == "" {
		return email
	}
	return email[:at+1] + ascii
}

func isDomainValid(domain string) bool {
	if !strings.Contains(domain, ".") {
		return false
	}
	for _, part := range strings.Split(domain, ".") {
		if part == "" || strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return false
		}
	}
	return true
}
