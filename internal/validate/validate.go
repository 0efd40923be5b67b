// Package validate checks canonical prospect records for structural and
// business-rule problems and scores their completeness.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/normalize"
)

// Error messages. Stored verbatim on quarantine records.
const (
	ErrEmailRequired      = "email: Required"
	ErrEmailFormat        = "email: Invalid email format"
	ErrFirstNameRequired  = "first_name: Required"
	ErrLastNameRequired   = "last_name: Required"
	ErrLinkedInFormat     = "linkedin_url: Invalid LinkedIn URL"
	ErrPhoneDigits        = "phone: Must contain 10-15 digits"
	ErrDomainFormat       = "company_domain: Invalid domain"
	ErrEmailDomainMatch   = "email: Domain does not match company_domain"
	ErrLinkedInNeedsNames = "linkedin_url: Requires first_name and last_name"
	ErrTitleNeedsCompany  = "job_title: Requires company_name"
)

// LowCompleteness is the score below which a warning is attached.
const LowCompleteness = 0.5

// Weights used for the completeness score.
var Weights = map[string]float64{
	model.FieldEmail:         2,
	model.FieldFirstName:     2,
	model.FieldLastName:      2,
	model.FieldJobTitle:      1.5,
	model.FieldCompanyName:   1.5,
	model.FieldLinkedInURL:   1.5,
	model.FieldPhone:         1,
	model.FieldLocation:      1,
	model.FieldCompanyDomain: 1,
	model.FieldTimezone:      0.5,
}

// DefaultFreeProviders lists consumer mailbox domains.
var DefaultFreeProviders = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "hotmail.com", "outlook.com",
	"live.com", "msn.com", "aol.com", "icloud.com", "me.com", "mac.com",
	"protonmail.com", "proton.me", "gmx.com", "mail.com", "yandex.com", "zoho.com",
}

var linkedInShapes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https?://(www\.)?linkedin\.com/in/[^/?#\s]+/?$`),
	regexp.MustCompile(`(?i)^https?://(www\.)?linkedin\.com/pub/[^?#\s]+/?$`),
	regexp.MustCompile(`(?i)^https?://(www\.)?linkedin\.com/profile/view\?([^#\s]*&)?id=[^&#\s]+`),
}

// Validator checks canonical records. It is safe for concurrent use.
type Validator struct {
	v    *validator.Validate
	free map[string]bool
}

// New creates a Validator. An empty provider list uses DefaultFreeProviders.
func New(freeProviders []string) *Validator {
	if len(freeProviders) == 0 {
		freeProviders = DefaultFreeProviders
	}
	free := make(map[string]bool, len(freeProviders))
	for _, d := range freeProviders {
		free[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled()), free: free}
}

var std = New(nil)

// Validate checks rec with the default free-provider list.
func Validate(rec model.Identity) model.ValidationResult {
	return std.Validate(rec)
}

// IsFreeProvider reports whether domain is a consumer mailbox provider.
func (val *Validator) IsFreeProvider(domain string) bool {
	return val.free[strings.ToLower(domain)]
}

// Validate runs every check against rec. Warnings never affect IsValid.
func (val *Validator) Validate(rec model.Identity) model.ValidationResult {
	res := model.ValidationResult{Errors: []string{}, Warnings: []string{}}
	addErr := func(msg string) { res.Errors = append(res.Errors, msg) }
	addWarn := func(msg string) { res.Warnings = append(res.Warnings, msg) }

	emailOK := false
	switch {
	case rec.Email == "":
		addErr(ErrEmailRequired)
	case val.v.Var(rec.Email, "email") != nil:
		addErr(ErrEmailFormat)
	default:
		emailOK = true
	}
	if rec.FirstName == "" {
		addErr(ErrFirstNameRequired)
	}
	if rec.LastName == "" {
		addErr(ErrLastNameRequired)
	}

	if rec.LinkedInURL != "" && !validLinkedIn(rec.LinkedInURL) {
		addErr(ErrLinkedInFormat)
	}

	emailDomain := ""
	freeEmail := false
	if emailOK {
		emailDomain = strings.ToLower(rec.Email[strings.LastIndex(rec.Email, "@")+1:])
		if val.IsFreeProvider(emailDomain) {
			freeEmail = true
			addWarn(fmt.Sprintf("email: Personal email domain (%s)", emailDomain))
		}
	}

	if rec.Phone != "" {
		if n := len(digitsOnly(rec.Phone)); n < 10 || n > 15 {
			addErr(ErrPhoneDigits)
		}
	}

	domainOK := false
	if rec.CompanyDomain != "" {
		if val.validDomain(rec.CompanyDomain) {
			domainOK = true
		} else {
			addErr(ErrDomainFormat)
		}
	}

	if emailOK && domainOK && !freeEmail && !RelatedDomains(emailDomain, normalize.BareDomain(rec.CompanyDomain)) {
		addErr(ErrEmailDomainMatch)
	}
	if rec.LinkedInURL != "" && (rec.FirstName == "" || rec.LastName == "") {
		addErr(ErrLinkedInNeedsNames)
	}
	if rec.JobTitle != "" && rec.CompanyName == "" {
		addErr(ErrTitleNeedsCompany)
	}

	res.CompletenessScore = Completeness(rec)
	if res.CompletenessScore < LowCompleteness {
		addWarn(fmt.Sprintf("completeness: Low completeness score (%.2f)", res.CompletenessScore))
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

// Completeness is the weighted share of populated identity fields.
func Completeness(rec model.Identity) float64 {
	var filled, total float64
	for _, f := range model.IdentityFields {
		w := Weights[f]
		total += w
		if rec.Field(f) != "" {
			filled += w
		}
	}
	if total == 0 {
		return 0
	}
	return filled / total
}

// RelatedDomains reports whether a and b are equal or one is a subdomain
// of the other.
func RelatedDomains(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

func validLinkedIn(u string) bool {
	for _, re := range linkedInShapes {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

// validDomain accepts a bare FQDN with an optional scheme, "www." and
// trailing slash.
func (val *Validator) validDomain(d string) bool {
	d = strings.TrimSpace(d)
	lower := strings.ToLower(d)
	for _, p := range []string{"https://", "http://"} {
		lower = strings.TrimPrefix(lower, p)
	}
	lower = strings.TrimSuffix(lower, "/")
	if lower == "" || strings.ContainsAny(lower, "/?# ") {
		return false
	}
	return val.v.Var(lower, "fqdn") == nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
