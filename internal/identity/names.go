package identity

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Status words the conferencing page appends to participant names.
var statusWords = []*regexp.Regexp{
	regexp.MustCompile(`\s+Verrouillé(\s|$)`),
	regexp.MustCompile(`\s+Webcam(\s|$)`),
	regexp.MustCompile(`\s+Mobile(\s|$)`),
	regexp.MustCompile(`\s+Présentateur(\s|$)`),
	regexp.MustCompile(`\s+Modérateur(\s|$)`),
}

var (
	separator = regexp.MustCompile(`\s*\|\s*`)
	selfLabel = regexp.MustCompile(`(.+?)\s*Vous`)
)

// CleanName strips status badges and separators from a scraped participant name.
func CleanName(raw string) string {
	name := raw
	for _, re := range statusWords {
		// Repeat until stable so adjacent badges sharing one space are all removed.
		for re.MatchString(name) {
			name = re.ReplaceAllString(name, "$1")
		}
	}
	name = separator.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// ParseSelfLabel extracts the local display name from the accessibility label of
// the participant's own tile, e.g. "Alice Martin Vous Modérateur".
func ParseSelfLabel(label string) (string, bool) {
	m := selfLabel.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	name := CleanName(m[1])
	return name, name != ""
}

var diacritics = runes.Remove(runes.Predicate(func(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
}))

// NormalizeName folds a display name for contributor matching: lowercase,
// diacritics removed, only ASCII letters and digits kept.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	folded, _, err := transform.String(transform.Chain(norm.NFD, diacritics), strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, folded)
}

// Initials returns the uppercased first letter of every word.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Color returns the pastel HSL color the overlay uses for a participant avatar.
func Color(name string) string {
	hue := math.Mod(float64(len(utf16.Encode([]rune(name))))*137.508, 360)
	return fmt.Sprintf("hsl(%g, 70%%, 80%%)", hue)
}
