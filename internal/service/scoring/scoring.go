package scoring

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/normalize"
)

const (
	categoryContact  = "contact_completeness"
	categoryWebsite  = "website_quality"
	categoryRegistry = "registry_profile"
	categoryLocation = "location"
)

var freeHostingDomains = []string{
	"wordpress.com",
	"blogspot.com",
	"wixsite.com",
	"weebly.com",
	"squarespace.com",
	"business.site",
	"godaddysites.com",
	"webnode.page",
	"strikingly.com",
	"facebook.com",
}

// LeadFeatures captures the record signals used for scoring.
type LeadFeatures struct {
	Email      string
	Phone      string
	Website    string
	TaxID      string
	REGON      string
	KRS        string
	Address    string
	PostalCode string
	City       string
}

// ScoreResult reports the aggregate score and the per-category breakdown.
type ScoreResult struct {
	Total     int            `json:"total"`
	Breakdown map[string]int `json:"breakdown"`
}

// FeaturesFromRecord flattens the optional fields of rec.
func FeaturesFromRecord(rec *entity.CompanyRecord) LeadFeatures {
	if rec == nil {
		return LeadFeatures{}
	}
	return LeadFeatures{
		Email:      deref(rec.Email),
		Phone:      deref(rec.Phone),
		Website:    deref(rec.Website),
		TaxID:      deref(rec.TaxID),
		REGON:      deref(rec.RegistrationID),
		KRS:        deref(rec.KRS),
		Address:    deref(rec.Address),
		PostalCode: deref(rec.PostalCode),
		City:       deref(rec.City),
	}
}

// ComputeScore evaluates the provided features and returns the score breakdown.
func ComputeScore(input LeadFeatures) ScoreResult {
	breakdown := map[string]int{
		categoryContact:  scoreContactCompleteness(input),
		categoryWebsite:  scoreWebsiteQuality(input),
		categoryRegistry: scoreRegistryProfile(input),
		categoryLocation: scoreLocation(input),
	}

	total := 0
	for _, value := range breakdown {
		total += value
	}

	return ScoreResult{
		Total:     total,
		Breakdown: breakdown,
	}
}

func scoreContactCompleteness(input LeadFeatures) int {
	score := 0
	email := strings.TrimSpace(input.Email)
	if email != "" {
		score += 10
		// Shared inboxes still count, personal ones count more.
		if normalize.IsValidEmail(email) {
			score += 10
		}
	}
	if strings.TrimSpace(input.Phone) != "" {
		score += 10
	}
	if strings.TrimSpace(input.Website) != "" {
		score += 10
	}
	return capAt(score, 40)
}

func scoreWebsiteQuality(input LeadFeatures) int {
	score := 0
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(input.Website)), "https://") {
		score += 10
	}
	if highQualityDomain(input.Website) {
		score += 10
	}
	return capAt(score, 20)
}

func scoreRegistryProfile(input LeadFeatures) int {
	score := 0
	if normalize.IsNIP(input.TaxID) {
		score += 10
	}
	if strings.TrimSpace(input.REGON) != "" {
		score += 5
	}
	if strings.TrimSpace(input.KRS) != "" {
		score += 5
	}
	return capAt(score, 20)
}

func scoreLocation(input LeadFeatures) int {
	score := 0
	if hasCompleteAddress(input.Address) {
		score += 10
	}
	if strings.TrimSpace(input.PostalCode) != "" && strings.TrimSpace(input.City) != "" {
		score += 10
	}
	return capAt(score, 20)
}

func hasCompleteAddress(raw string) bool {
	addr := strings.TrimSpace(raw)
	if len(addr) < 10 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range addr {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func highQualityDomain(raw string) bool {
	domain := extractDomain(raw)
	if domain == "" {
		return false
	}
	for _, bad := range freeHostingDomains {
		if domain == bad || strings.HasSuffix(domain, "."+bad) {
			return false
		}
	}
	return strings.Count(domain, ".") >= 1
}

func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lowered := strings.ToLower(raw)
	if !strings.Contains(lowered, "://") {
		lowered = "https://" + lowered
	}
	parsed, err := url.Parse(lowered)
	if err != nil {
		return ""
	}
	host := strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	host = strings.TrimPrefix(host, "www.")
	return host
}

func capAt(value, limit int) int {
	if value > limit {
		return limit
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
