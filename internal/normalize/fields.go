package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Particles kept lowercase unless they open the string.
var stopWords = map[string]bool{
	"of": true, "and": true, "the": true, "in": true, "for": true,
	"a": true, "an": true, "at": true, "to": true, "on": true,
}

// Tokens always rendered upper-case by title casing.
var acronyms = map[string]bool{
	"vp": true, "svp": true, "evp": true, "avp": true,
	"ceo": true, "cto": true, "cfo": true, "coo": true, "cmo": true,
	"cio": true, "cro": true, "ciso": true, "hr": true, "it": true,
	"qa": true, "ui": true, "ux": true, "ai": true, "ml": true,
	"b2b": true, "saas": true, "gtm": true, "usa": true, "uk": true, "uae": true,
}

// titleCase capitalizes each whitespace-separated word. The result depends
// only on the lowercased input, which keeps it idempotent.
func titleCase(s string) string {
	caser := cases.Title(language.English)
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		switch {
		case acronyms[strings.Trim(w, ",.&")]:
			words[i] = strings.ToUpper(w)
		case i > 0 && stopWords[w]:
		default:
			words[i] = caser.String(w)
		}
	}
	return strings.Join(words, " ")
}

// JobTitle maps known aliases and title-cases everything else.
func (n *Normalizer) JobTitle(s string) string {
	s = collapse(s)
	if s == "" {
		return ""
	}
	if canon, ok := n.tables.JobTitles[collapseKey(s)]; ok {
		return canon
	}
	return titleCase(s)
}

var (
	legalSuffixRe = regexp.MustCompile(`(?i)[\s,]+(inc|incorporated|llc|l\.l\.c|ltd|limited|llp|l\.l\.p|pllc|plc|gmbh)\.?$`)
	commaCorpRe   = regexp.MustCompile(`(?i)\s*,\s*(corp|corporation|co)\.?$`)
	dottedCorpRe  = regexp.MustCompile(`(?i)\s+(corp|co)\.$`)
)

// CompanyName strips legal-entity suffixes until none remain, then maps
// known aliases. Bare "Corp" or "Co" is only treated as a suffix when
// comma-separated or abbreviated with a period.
func (n *Normalizer) CompanyName(s string) string {
	s = collapse(s)
	for {
		next := legalSuffixRe.ReplaceAllString(s, "")
		next = commaCorpRe.ReplaceAllString(next, "")
		next = dottedCorpRe.ReplaceAllString(next, "")
		next = strings.TrimRight(next, " ,&-")
		if next == s || next == "" {
			break
		}
		s = next
	}
	if canon, ok := n.tables.Companies[collapseKey(s)]; ok {
		return canon
	}
	return s
}

// Location maps known cities to "City, Region, Country" and otherwise
// title-cases each comma-separated part, upper-casing 2-letter codes.
func (n *Normalizer) Location(s string) string {
	parts := splitLocation(s)
	if len(parts) == 0 {
		return ""
	}
	if canon, ok := n.tables.Cities[locationKey(s)]; ok {
		return canon
	}
	for i, p := range parts {
		if len(p) == 2 && isLetters(p) {
			parts[i] = strings.ToUpper(p)
			continue
		}
		parts[i] = titleCase(p)
	}
	return strings.Join(parts, ", ")
}

// Phone formats US numbers as "+1 (XXX) XXX-XXXX". Values already carrying
// a leading "+" pass through; anything else is reduced to its digits.
func Phone(s string) string {
	s = collapse(s)
	if strings.HasPrefix(s, "+") {
		return s
	}
	d := digits(s)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) == 10 {
		return fmt.Sprintf("+1 (%s) %s-%s", d[:3], d[3:6], d[6:])
	}
	return d
}

// Email lowercases and trims.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Domain lowercases and trims a company domain.
func Domain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var (
	linkedInProfileRe = regexp.MustCompile(`(?i)linkedin\.com/(?:in|pub)/([^/?#\s]+)`)
	linkedInViewRe    = regexp.MustCompile(`(?i)linkedin\.com/profile/view\?(?:[^#\s]*&)?id=([^&#\s]+)`)
)

// LinkedInBase is the canonical profile URL prefix.
const LinkedInBase = "https://www.linkedin.com/in/"

// LinkedInURL rewrites /in/, /pub/ and /profile/view?id= URLs to the
// canonical https://www.linkedin.com/in/<handle> form. Handles are
// lowercased. Unrecognized input is returned trimmed.
func LinkedInURL(s string) string {
	s = strings.TrimSpace(s)
	if m := linkedInProfileRe.FindStringSubmatch(s); m != nil {
		return LinkedInBase + strings.ToLower(m[1])
	}
	if m := linkedInViewRe.FindStringSubmatch(s); m != nil {
		return LinkedInBase + strings.ToLower(m[1])
	}
	return s
}

// Timezone keeps an explicit value and otherwise infers one from the
// location, falling back to UTC.
func (n *Normalizer) Timezone(explicit, location string) string {
	if tz := strings.TrimSpace(explicit); tz != "" {
		return tz
	}
	loc := strings.ToLower(location)
	if loc == "" {
		return DefaultTimezone
	}
	parts := strings.Split(loc, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for _, rule := range n.tables.Timezones {
		for _, c := range rule.Contains {
			if strings.Contains(loc, c) {
				return rule.Zone
			}
		}
		for _, r := range rule.Regions {
			for _, p := range parts {
				if p == r {
					return rule.Zone
				}
			}
		}
	}
	return DefaultTimezone
}

// DefaultTimezone is assigned when nothing else is known.
const DefaultTimezone = "UTC"

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// BareDomain strips scheme, leading "www." and any path from a domain.
func BareDomain(s string) string {
	s = Domain(s)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
