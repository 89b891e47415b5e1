package quality

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var fakeNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^business\s+(llc|inc|corp|corporation)\.?$`),
	regexp.MustCompile(`(?i)^company\s+\d+$`),
	regexp.MustCompile(`(?i)^(generic|test|sample)\b`),
	regexp.MustCompile(`(?i)^(business|company|store|shop|office)$`),
}

var (
	digitRe      = regexp.MustCompile(`\d`)
	streetTypeRe = regexp.MustCompile(`(?i)\b(st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|way|ct|court|pl|place|pkwy|parkway|hwy|highway)\b`)
	cityRe       = regexp.MustCompile(`,\s*[A-Za-z][A-Za-z\s]*`)
	stateCodeRe  = regexp.MustCompile(`(?:^|\s)[A-Z]{2}(?:\s+\d{5}(?:-\d{4})?)?$`)
	stateNameRe  = regexp.MustCompile(`(?i)(?:^|\s)(alabama|alaska|arizona|arkansas|california|colorado|connecticut|delaware|florida|georgia|hawaii|idaho|illinois|indiana|iowa|kansas|kentucky|louisiana|maine|maryland|massachusetts|michigan|minnesota|mississippi|missouri|montana|nebraska|nevada|new hampshire|new jersey|new mexico|new york|north carolina|north dakota|ohio|oklahoma|oregon|pennsylvania|rhode island|south carolina|south dakota|tennessee|texas|utah|vermont|virginia|washington|west virginia|wisconsin|wyoming)(?:\s+\d{5}(?:-\d{4})?)?$`)
	countryRe    = regexp.MustCompile(`(?i)^(usa|us|u\.s\.a?\.?|united states)$`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

// socialHosts are listing or social sites that stand in for a real website.
var socialHosts = []string{
	"facebook.com", "instagram.com", "linkedin.com", "twitter.com", "x.com",
	"tiktok.com", "yelp.com", "yellowpages.com", "google.com", "sites.google.com",
}

// IsFakeName reports whether name is a placeholder such as "Business LLC".
func IsFakeName(name string) bool {
	name = strings.TrimSpace(name)
	for _, re := range fakeNamePatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// NameScore grades business-name plausibility, 0-100.
func NameScore(name string) float64 {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 2 || IsFakeName(name) {
		return 0
	}
	switch {
	case n < 3:
		return 20
	case n < 8:
		return 60
	case n < 15:
		return 80
	default:
		return 90
	}
}

// AddressScore grades address completeness, 0-100.
func AddressScore(address string) float64 {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0
	}
	if utf8.RuneCountInString(address) < 10 {
		return 20
	}

	score := 30.0
	if digitRe.MatchString(address) {
		score += 20
	}
	if streetTypeRe.MatchString(address) {
		score += 25
	}
	if cityRe.MatchString(address) {
		score += 15
	}
	if hasState(address) {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// hasState looks for a state code or name, optionally followed by a ZIP,
// in the last comma-separated part of the address. A trailing country part
// is skipped. Street-line tokens such as "NW" or "ST" never count.
func hasState(address string) bool {
	parts := strings.Split(address, ",")
	if len(parts) > 2 && countryRe.MatchString(strings.TrimSpace(parts[len(parts)-1])) {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return false
	}
	region := strings.TrimSpace(parts[len(parts)-1])
	return stateCodeRe.MatchString(region) || stateNameRe.MatchString(region)
}

// PhoneScore grades phone digit-count validity, 0-100.
func PhoneScore(phone string) float64 {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	switch {
	case digits == "":
		return 0
	case len(digits) < 10:
		return 20
	case len(digits) == 10:
		return 90
	case len(digits) == 11 && digits[0] == '1':
		return 100
	default:
		return 60
	}
}

// WebsiteScore grades website format and domain quality, 0-100.
func WebsiteScore(website string) float64 {
	website = strings.TrimSpace(website)
	if website == "" {
		return 0
	}

	host, ok := websiteHost(website)
	if !ok {
		return 20
	}
	for _, s := range socialHosts {
		if host == s || strings.HasSuffix(host, "."+s) {
			return 40
		}
	}
	if strings.HasSuffix(host, ".com") || strings.HasSuffix(host, ".org") || strings.HasSuffix(host, ".net") {
		return 100
	}
	return 80
}

func websiteHost(website string) (string, bool) {
	raw := website
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " _") {
		return "", false
	}
	if tld := host[strings.LastIndex(host, ".")+1:]; len(tld) < 2 {
		return "", false
	}
	return host, true
}
