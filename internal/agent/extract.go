package agent

import "regexp"

// postalCodePattern matches a word-bounded 5-digit ZIP, optionally carrying
// a ZIP+4 extension. Digits embedded in longer runs never match.
var postalCodePattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)

// ExtractPostalCode scans free text for the first 5-digit postal code and
// returns its 5-digit portion. Deterministic, no side effects.
func ExtractPostalCode(text string) (string, bool) {
	match := postalCodePattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}
