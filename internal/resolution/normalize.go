package resolution

import (
	"regexp"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Corporate suffix patterns, longest forms first so "Corporation" is
// consumed before "Corp" can match its prefix.
var corporateSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+Incorporated$`),
	regexp.MustCompile(`(?i)\s+Corporation$`),
	regexp.MustCompile(`(?i)\s+Limited$`),
	regexp.MustCompile(`(?i)\s+Company$`),
	regexp.MustCompile(`(?i)\s+Inc\.?$`),
	regexp.MustCompile(`(?i)\s+Corp\.?$`),
	regexp.MustCompile(`(?i)\s+LLC\.?$`),
	regexp.MustCompile(`(?i)\s+L\.L\.C\.?$`),
	regexp.MustCompile(`(?i)\s+Ltd\.?$`),
	regexp.MustCompile(`(?i)\s+LLP\.?$`),
	regexp.MustCompile(`(?i)\s+L\.L\.P\.?$`),
	regexp.MustCompile(`(?i)\s+LP\.?$`),
	regexp.MustCompile(`(?i)\s+L\.P\.?$`),
	regexp.MustCompile(`(?i)\s+Co\.?$`),
	regexp.MustCompile(`(?i)\s+PC\.?$`),
	regexp.MustCompile(`(?i)\s+P\.C\.?$`),
	regexp.MustCompile(`(?i)\s+PLLC\.?$`),
	regexp.MustCompile(`(?i),\s*Inc\.?$`),
	regexp.MustCompile(`(?i),\s*LLC\.?$`),
	regexp.MustCompile(`(?i),\s*Corp\.?$`),
	regexp.MustCompile(`,\s*$`),
}

var (
	nonWordChars = regexp.MustCompile(`[^\w\s]`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

// genericWords are industry vocabulary that cannot identify a company on
// its own. A pair where both normalized names reduce entirely to these
// words is never auto-merged or flagged without an identifier.
var genericWords = map[string]bool{
	"aerospace": true, "technologies": true, "technology": true,
	"systems": true, "solutions": true, "services": true, "defense": true,
	"dynamics": true, "industries": true, "engineering": true,
	"international": true, "corporation": true, "advanced": true,
	"global": true, "group": true, "associates": true, "consulting": true,
	"research": true, "analytics": true, "scientific": true,
	"innovations": true, "enterprises": true, "partners": true,
	"holdings": true, "management": true,
}

// NormalizeName reduces a company name to its comparable form: strip
// corporate suffixes (repeatedly, so "X Corp." and "X Corporation" both
// reduce to "x"), strip punctuation, collapse whitespace, lowercase, and
// drop a leading "the".
func NormalizeName(name string) string {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return ""
	}

	// Up to three passes handles stacked suffixes like "X Company, Inc.".
	for i := 0; i < 3; i++ {
		prev := normalized
		for _, pat := range corporateSuffixes {
			normalized = pat.ReplaceAllString(normalized, "")
		}
		normalized = strings.TrimSpace(normalized)
		if normalized == prev {
			break
		}
	}

	normalized = nonWordChars.ReplaceAllString(normalized, " ")
	normalized = multiSpace.ReplaceAllString(normalized, " ")
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	normalized = strings.TrimPrefix(normalized, "the ")

	return strings.TrimSpace(normalized)
}

// IsOnlyGenericWords reports whether every token of a normalized name is
// generic industry vocabulary. Empty names count as generic.
func IsOnlyGenericWords(normalized string) bool {
	if normalized == "" {
		return true
	}
	for _, word := range strings.Fields(strings.ToLower(normalized)) {
		if !genericWords[word] {
			return false
		}
	}
	return true
}

// SimilarityNormalized blends three fuzzy scores over already-normalized
// names: token sort (word reordering) and token set (subset names) at 40%
// each, plain ratio at 20%. Returns 0-100.
func SimilarityNormalized(norm1, norm2 string) float64 {
	if norm1 == "" || norm2 == "" {
		return 0
	}
	tokenSort := fuzzy.TokenSortRatio(norm1, norm2)
	tokenSet := fuzzy.TokenSetRatio(norm1, norm2)
	ratio := fuzzy.Ratio(norm1, norm2)

	return float64(tokenSort)*0.4 + float64(tokenSet)*0.4 + float64(ratio)*0.2
}

// Similarity normalizes both names and scores them.
func Similarity(name1, name2 string) float64 {
	return SimilarityNormalized(NormalizeName(name1), NormalizeName(name2))
}

// ExtractState pulls a US state abbreviation out of a free-form location
// string, or "" when none is present.
func ExtractState(location string) string {
	if location == "" {
		return ""
	}
	cleaned := strings.ReplaceAll(strings.ToUpper(location), ",", " ")
	for _, part := range strings.Fields(cleaned) {
		if usStates[part] {
			return part
		}
	}
	return ""
}

// LocationsOverlap is the looser check used for resolve-time confidence
// boosts: any shared token (city or state) counts.
func LocationsOverlap(loc1, loc2 string) bool {
	if loc1 == "" || loc2 == "" {
		return false
	}
	parts1 := strings.Fields(strings.ReplaceAll(strings.ToUpper(loc1), ",", " "))
	set2 := map[string]bool{}
	for _, p := range strings.Fields(strings.ReplaceAll(strings.ToUpper(loc2), ",", " ")) {
		set2[p] = true
	}
	for _, p := range parts1 {
		if set2[p] {
			return true
		}
	}
	return false
}
