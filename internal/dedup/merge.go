package dedup

import (
	"strings"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/normalize"
	"github.com/sells-group/prospect-pipeline/internal/payload"
)

// Merge folds incoming into existing and returns the result together with
// the names of fields whose value changed.
//
// job_title, phone, location, timezone and last_enriched_at take the
// incoming value when it is set. Identity fields (names, email, company,
// linkedin_url, company_domain) are only filled when empty on existing.
// Source tags are appended if absent and enrichment payloads merge
// recursively.
func Merge(existing, incoming model.Identity) (model.Identity, []string) {
	out := existing
	var updated []string

	overwrite := func(name string, dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			updated = append(updated, name)
		}
	}
	fill := func(name string, dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			updated = append(updated, name)
		}
	}

	overwrite(model.FieldJobTitle, &out.JobTitle, incoming.JobTitle)
	overwrite(model.FieldPhone, &out.Phone, incoming.Phone)
	overwrite(model.FieldLocation, &out.Location, incoming.Location)
	if incoming.Timezone != normalize.DefaultTimezone || out.Timezone == "" {
		overwrite(model.FieldTimezone, &out.Timezone, incoming.Timezone)
	}
	if incoming.LastEnrichedAt != nil && (out.LastEnrichedAt == nil || !out.LastEnrichedAt.Equal(*incoming.LastEnrichedAt)) {
		t := *incoming.LastEnrichedAt
		out.LastEnrichedAt = &t
		updated = append(updated, model.FieldLastEnriched)
	}

	fill(model.FieldFirstName, &out.FirstName, incoming.FirstName)
	fill(model.FieldLastName, &out.LastName, incoming.LastName)
	fill(model.FieldEmail, &out.Email, incoming.Email)
	fill(model.FieldCompanyName, &out.CompanyName, incoming.CompanyName)
	fill(model.FieldLinkedInURL, &out.LinkedInURL, incoming.LinkedInURL)
	fill(model.FieldCompanyDomain, &out.CompanyDomain, normalize.BareDomain(incoming.CompanyDomain))

	if src := AppendSource(out.Source, incoming.Source); src != out.Source {
		out.Source = src
		updated = append(updated, model.FieldSource)
	}

	if merged := payload.Merge(out.Enrichment, incoming.Enrichment); !merged.Equal(out.Enrichment) {
		out.Enrichment = merged
		updated = append(updated, model.FieldEnrichment)
	}

	return out, updated
}

// AppendSource adds each tag in incoming to the comma-joined list in
// existing unless already present. existing is returned untouched when
// nothing is added.
func AppendSource(existing, incoming string) string {
	have := model.Identity{Source: existing}.SourceTags()
	seen := make(map[string]bool, len(have))
	for _, t := range have {
		seen[t] = true
	}
	added := false
	for _, t := range (model.Identity{Source: incoming}).SourceTags() {
		if !seen[t] {
			have = append(have, t)
			seen[t] = true
			added = true
		}
	}
	if !added {
		return existing
	}
	return strings.Join(have, ",")
}
