package resolution

import (
	"regexp"
	"strings"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

var (
	nonAlnum  = regexp.MustCompile(`[^A-Z0-9]`)
	nonDigits = regexp.MustCompile(`[^0-9]`)
)

// NormalizeCAGE uppercases and strips separators; a CAGE code is exactly
// five alphanumeric characters, anything else normalizes to "".
func NormalizeCAGE(code string) string {
	if code == "" {
		return ""
	}
	cleaned := nonAlnum.ReplaceAllString(strings.ToUpper(code), "")
	if len(cleaned) != 5 {
		return ""
	}
	return cleaned
}

// NormalizeDUNS strips everything but digits; valid DUNS numbers carry
// exactly nine.
func NormalizeDUNS(number string) string {
	if number == "" {
		return ""
	}
	cleaned := nonDigits.ReplaceAllString(number, "")
	if len(cleaned) != 9 {
		return ""
	}
	return cleaned
}

// NormalizeEIN strips the XX-XXXXXXX dash; valid EINs carry nine digits.
func NormalizeEIN(ein string) string {
	if ein == "" {
		return ""
	}
	cleaned := nonDigits.ReplaceAllString(ein, "")
	if len(cleaned) != 9 {
		return ""
	}
	return cleaned
}

// SharedIdentifiers lists which authoritative identifiers two entities
// have in common. A shared identifier is definitive for merging.
func SharedIdentifiers(a, b *types.Entity) []string {
	var shared []string
	if a.CageCode != nil && b.CageCode != nil && *a.CageCode == *b.CageCode {
		shared = append(shared, "cage_code")
	}
	if a.DunsNumber != nil && b.DunsNumber != nil && *a.DunsNumber == *b.DunsNumber {
		shared = append(shared, "duns_number")
	}
	if a.Ein != nil && b.Ein != nil && *a.Ein == *b.Ein {
		shared = append(shared, "ein")
	}
	return shared
}
