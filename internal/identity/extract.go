package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe    = regexp.MustCompile(`(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{3}\)?|\d{3})[ .-]?\d{3}[ .-]?\d{4}\b`)
	linkedInRe = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?linkedin\.com/(?:in|pub|mwlite/in)/([A-Za-z0-9\-_%]+)`)
	gitHubRe   = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?github\.com/([A-Za-z0-9\-]+)`)

	nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// GitHub paths that are not user profiles.
var gitHubReserved = map[string]bool{
	"about": true, "features": true, "login": true, "marketplace": true, "orgs": true,
	"pricing": true, "settings": true, "sponsors": true, "topics": true,
}

const minPhoneDigits = 10

// Extract finds contact identifiers in free text and returns them normalized:
// lowercase emails, digits-only phones and canonical profile URLs.
func Extract(text string) model.Identifiers {
	var ids model.Identifiers

	ids.Emails = emailRe.FindAllString(text, -1)

	for _, m := range phoneRe.FindAllString(text, -1) {
		if d := model.NormalizePhone(m); len(d) >= minPhoneDigits {
			ids.Phones = append(ids.Phones, d)
		}
	}

	for _, m := range linkedInRe.FindAllStringSubmatch(text, -1) {
		handle := strings.ToLower(strings.Trim(m[1], "-_"))
		if handle != "" {
			ids.LinkedIn = append(ids.LinkedIn, "https://linkedin.com/in/"+handle)
		}
	}

	for _, m := range gitHubRe.FindAllStringSubmatch(text, -1) {
		handle := strings.ToLower(m[1])
		if len(handle) > 1 && !gitHubReserved[handle] {
			ids.GitHub = append(ids.GitHub, "https://github.com/"+handle)
		}
	}

	return ids.Normalize()
}

// NormalizeKey turns a display name into a candidate key: accents stripped,
// lowercase, runs of other characters collapsed to a single underscore.
func NormalizeKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = nonKeyChars.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}
