package similarity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are stripped from the end of a cleaned name, repeatedly, so
// "Acme Co Inc" reduces to "acme".
var legalSuffixes = map[string]bool{
	"llc":          true,
	"inc":          true,
	"corp":         true,
	"corporation":  true,
	"ltd":          true,
	"co":           true,
	"company":      true,
	"incorporated": true,
	"limited":      true,
}

var (
	nonDigitRe      = regexp.MustCompile(`\D`)
	nonAlnumSpaceRe = regexp.MustCompile(`[^a-z0-9\s]`)
	streetNumberRe  = regexp.MustCompile(`^\s*(\d+[a-z]?)\b`)
)

// CleanName lower-cases a business name, folds diacritics, drops punctuation
// and trailing legal suffixes, and collapses whitespace.
func CleanName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = foldDiacritics(name)
	// "Joe's" and "Joes" must compare equal, so apostrophes vanish rather
	// than becoming separators.
	name = strings.NewReplacer("'", "", "’", "", "&", " and ").Replace(name)
	name = nonAlnumSpaceRe.ReplaceAllString(name, " ")

	fields := strings.Fields(name)
	for len(fields) > 1 && legalSuffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// PhoneDigits strips everything but digits from a phone number.
func PhoneDigits(phone string) string {
	return nonDigitRe.ReplaceAllString(phone, "")
}

// lastTen returns the trailing 10 digits, or "" when fewer are present.
func lastTen(phone string) string {
	d := PhoneDigits(phone)
	if len(d) < 10 {
		return ""
	}
	return d[len(d)-10:]
}

// StreetNumber extracts the leading street number of an address.
func StreetNumber(address string) string {
	m := streetNumberRe.FindStringSubmatch(strings.ToLower(address))
	if m == nil {
		return ""
	}
	return m[1]
}

// addressTokens returns the distinct lower-cased words of at least minLen runes.
func addressTokens(address string, minLen int) map[string]bool {
	cleaned := nonAlnumSpaceRe.ReplaceAllString(strings.ToLower(foldDiacritics(address)), " ")
	out := make(map[string]bool)
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) >= minLen {
			out[tok] = true
		}
	}
	return out
}
