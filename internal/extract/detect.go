package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/daybooklabs/daybook/pkg/models"
)

// Auxiliary metadata detectors used by the item builder. Both are
// heuristics over the segment text; they never fail, they just return
// empty values when nothing plausible is found.

// Case-insensitive on the verb, since statements often open with it, but
// the name itself must be capitalized.
var personRe = regexp.MustCompile(`\b(?i:with|from|to|for|ping|ask|tell)\s+([A-Z][a-z]+)\b`)

// personStopwords are capitalized words the person pattern would otherwise
// mistake for names.
var personStopwords = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
	"January": true, "February": true, "March": true, "April": true,
	"May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
	"Jira": true, "Slack": true, "Monday.com": true, "Zoom": true,
}

// DetectPerson extracts a likely person reference ("follow up with Meha",
// "pending review from Raj"). Returns "" when no name is found.
func DetectPerson(text string) string {
	for _, m := range personRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if !personStopwords[name] {
			return name
		}
	}
	return ""
}

var (
	riskHighRe   = regexp.MustCompile(`(?i)\b(blocked|blocker|refused|critical|urgent|showstopper|escalat\w+)\b`)
	riskMediumRe = regexp.MustCompile(`(?i)\b(delayed|slipping|at risk|concern|rejected|declined|pushed back|waiting on)\b`)
)

// DetectRisk assigns a risk level from keyword sets. Segments classified
// as blockers default to low risk when no keyword escalates them; other
// categories carry no risk level unless a keyword is present.
func DetectRisk(text string, category models.Category) models.RiskLevel {
	switch {
	case riskHighRe.MatchString(text):
		return models.RiskHigh
	case riskMediumRe.MatchString(text):
		return models.RiskMedium
	case category == models.CategoryBlocker:
		return models.RiskLow
	}
	return ""
}

// canonicalFillers are leading phrases stripped when deriving the item's
// canonical text from the raw statement.
var canonicalFillers = []string{
	"need to ", "needs to ", "should ", "must ", "have to ",
	"todo: ", "todo ", "remember to ", "don't forget to ",
}

// CanonicalText derives the display text for a candidate from its source
// segment: leading filler phrases are removed and the first letter is
// capitalized. The source snippet itself is kept verbatim elsewhere.
func CanonicalText(text string) string {
	out := text
	lower := strings.ToLower(out)
	for _, filler := range canonicalFillers {
		if strings.HasPrefix(lower, filler) {
			out = out[len(filler):]
			break
		}
	}
	if out == "" {
		return text
	}
	r, size := utf8.DecodeRuneInString(out)
	return string(unicode.ToUpper(r)) + out[size:]
}
