package normalize

import (
	"strings"
	"unicode"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

// keyAliases maps common snake_case source keys onto canonical field names.
var keyAliases = map[string]string{
	"mail":                 model.FieldEmail,
	"e_mail":               model.FieldEmail,
	"email_address":        model.FieldEmail,
	"work_email":           model.FieldEmail,
	"first":                model.FieldFirstName,
	"firstname":            model.FieldFirstName,
	"given_name":           model.FieldFirstName,
	"last":                 model.FieldLastName,
	"lastname":             model.FieldLastName,
	"surname":              model.FieldLastName,
	"family_name":          model.FieldLastName,
	"title":                model.FieldJobTitle,
	"jobtitle":             model.FieldJobTitle,
	"position":             model.FieldJobTitle,
	"role":                 model.FieldJobTitle,
	"company":              model.FieldCompanyName,
	"companyname":          model.FieldCompanyName,
	"organization":         model.FieldCompanyName,
	"employer":             model.FieldCompanyName,
	"website":              model.FieldCompanyDomain,
	"domain":               model.FieldCompanyDomain,
	"company_website":      model.FieldCompanyDomain,
	"company_url":          model.FieldCompanyDomain,
	"linkedin":             model.FieldLinkedInURL,
	"linked_in":            model.FieldLinkedInURL,
	"linked_in_url":        model.FieldLinkedInURL,
	"linkedin_profile":     model.FieldLinkedInURL,
	"linked_in_profile":    model.FieldLinkedInURL,
	"linkedin_profile_url": model.FieldLinkedInURL,
	"phone_number":         model.FieldPhone,
	"mobile":               model.FieldPhone,
	"mobile_phone":         model.FieldPhone,
	"telephone":            model.FieldPhone,
	"tz":                   model.FieldTimezone,
	"time_zone":            model.FieldTimezone,
	"enrichment":           model.FieldEnrichment,
}

// CanonicalKey converts a source key to snake_case and resolves aliases.
func CanonicalKey(key string) string {
	k := snakeCase(key)
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

func snakeCase(s string) string {
	rs := []rune(strings.TrimSpace(s))
	var b strings.Builder
	last := '_'
	sep := func() {
		if last != '_' {
			b.WriteRune('_')
			last = '_'
		}
	}

	for i, r := range rs {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '_' || r == '/':
			sep()
		case unicode.IsUpper(r):
			if i > 0 && wordBreak(rs, i) {
				sep()
			}
			r = unicode.ToLower(r)
			b.WriteRune(r)
			last = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			last = r
		}
	}
	return strings.Trim(b.String(), "_")
}

// wordBreak reports whether the upper-case rune at i starts a new word:
// "firstName" breaks before N, "URLPath" breaks before P.
func wordBreak(rs []rune, i int) bool {
	prev := rs[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	return unicode.IsUpper(prev) && i+1 < len(rs) && unicode.IsLower(rs[i+1])
}
