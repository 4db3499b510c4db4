package directory

import "regexp"

// postalCityPattern matches "NN-NNN City" where the city is one or more
// capitalised words. Street names after a comma are not captured.
var postalCityPattern = regexp.MustCompile(`(?:^|[^\d])(\d{2}-\d{3})\s+(\p{Lu}[\p{L}-]*(?:[ \t]+\p{Lu}[\p{L}-]*)*)`)

// ParsePostalCity pulls a Polish postal code and the city that follows it out
// of free-form address text. It is a heuristic: both results are nil when no
// match is found, and unusual city names may be cut short.
func ParsePostalCity(address string) (postalCode, city *string) {
	m := postalCityPattern.FindStringSubmatch(address)
	if m == nil {
		return nil, nil
	}
	code, name := m[1], m[2]
	return &code, &name
}
