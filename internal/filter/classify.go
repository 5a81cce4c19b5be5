package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

// DefaultMinWords is the visible-word threshold below which a page counts as
// placeholder content.
const DefaultMinWords = 20

var defaultPhrases = []string{
	"domain is for sale",
	"this domain may be for sale",
	"buy this domain",
	"domain for sale",
	"this domain is parked",
	"parked free",
	"parked domain",
	"coming soon",
	"under construction",
	"website is under construction",
	"welcome to nginx!",
	"apache2 ubuntu default page",
	"apache2 debian default page",
	"test page for the apache http server",
	"iis windows server",
	"index of /",
}

// parkingServices are matched in page text and markup as whole host names, so
// "dan.com" does not fire on "jordan.com".
var parkingServices = []string{
	"sedoparking.com",
	"parkingcrew.net",
	"bodis.com",
	"above.com",
	"afternic.com",
	"hugedomains.com",
	"dan.com",
	"domainmarket.com",
	"undeveloped.com",
}

var parkingServicePattern = hostPattern(parkingServices)

var parkingHosts = []string{
	"sedoparking.com",
	"sedo.com",
	"parkingcrew.net",
	"bodis.com",
	"above.com",
	"afternic.com",
	"hugedomains.com",
	"dan.com",
	"domainmarket.com",
	"undeveloped.com",
	"parklogic.com",
	"voodoo.com",
}

var parkingMarkup = regexp.MustCompile(
	`(?i)\b(?:class|id)\s*=\s*["'][^"']*\b(parked|parking|parking-lander|domain-sale|domain-for-sale|for-sale-banner|sedo|bodis)\b`,
)

// Signals are the page features the classifier looks at.
type Signals struct {
	Title    string
	Text     string
	HTML     string
	FinalURL string
}

// Classifier applies the parked-domain rules. The zero value uses the default
// phrase list and word threshold.
type Classifier struct {
	phrases  []string
	minWords int
}

// NewClassifier builds a Classifier with extra phrases appended to the
// built-in list. minWords <= 0 selects DefaultMinWords.
func NewClassifier(minWords int, extraPhrases []string) *Classifier {
	phrases := make([]string, 0, len(defaultPhrases)+len(extraPhrases))
	phrases = append(phrases, defaultPhrases...)
	for _, p := range extraPhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	return &Classifier{phrases: phrases, minWords: minWords}
}

// Classify is a convenience wrapper around the default classifier.
func Classify(rawURL string, s Signals) ingest.DomainVerdict {
	return NewClassifier(0, nil).Classify(rawURL, s)
}

// Classify evaluates the rules in order and returns on the first match.
func (c *Classifier) Classify(rawURL string, s Signals) ingest.DomainVerdict {
	verdict := ingest.DomainVerdict{URL: rawURL}

	text := strings.ToLower(s.Title + " " + s.Text)
	markup := strings.ToLower(s.HTML)
	for _, phrase := range c.phrases {
		if strings.Contains(text, phrase) || strings.Contains(markup, phrase) {
			verdict.IsParked = true
			verdict.Reason = fmt.Sprintf("parking phrase %q", phrase)
			return verdict
		}
	}
	for _, content := range []string{text, markup} {
		if m := parkingServicePattern.FindStringSubmatch(content); m != nil {
			verdict.IsParked = true
			verdict.Reason = fmt.Sprintf("parking phrase %q", m[1])
			return verdict
		}
	}

	if n := countWords(s.Text); n < c.minWords {
		verdict.IsParked = true
		verdict.Reason = fmt.Sprintf("minimal content (%d words)", n)
		return verdict
	}

	if m := parkingMarkup.FindStringSubmatch(s.HTML); m != nil {
		verdict.IsParked = true
		verdict.Reason = fmt.Sprintf("parking markup %q", strings.ToLower(m[1]))
		return verdict
	}

	if host := parkingHost(s.FinalURL); host != "" {
		verdict.IsParked = true
		verdict.Reason = "parking host " + host
		return verdict
	}

	verdict.Reason = "legitimate"
	return verdict
}

func hostPattern(hosts []string) *regexp.Regexp {
	quoted := make([]string, len(hosts))
	for i, h := range hosts {
		quoted[i] = regexp.QuoteMeta(h)
	}
	return regexp.MustCompile(`(?:^|[^a-z0-9-])(` + strings.Join(quoted, "|") + `)(?:[^a-z0-9-]|$)`)
}

func countWords(text string) int {
	n := 0
	for _, tok := range strings.Fields(text) {
		if len([]rune(tok)) > 2 {
			n++
		}
	}
	return n
}

func parkingHost(finalURL string) string {
	if finalURL == "" {
		return ""
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range parkingHosts {
		if host == p || strings.HasSuffix(host, "."+p) {
			return p
		}
	}
	return ""
}
