package model

import (
	"strings"
	"time"

	"github.com/sells-group/prospect-pipeline/internal/payload"
)

// Canonical field names shared by the normalizer, validator, and stores.
const (
	FieldEmail         = "email"
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
	FieldJobTitle      = "job_title"
	FieldCompanyName   = "company_name"
	FieldCompanyDomain = "company_domain"
	FieldLinkedInURL   = "linkedin_url"
	FieldPhone         = "phone"
	FieldLocation      = "location"
	FieldTimezone      = "timezone"
	FieldSource        = "source"
	FieldEnrichment    = "enrichment_data"
	FieldLastEnriched  = "last_enriched_at"
)

// IdentityFields lists the canonical identity fields in a stable order.
var IdentityFields = []string{
	FieldEmail, FieldFirstName, FieldLastName, FieldJobTitle, FieldCompanyName,
	FieldCompanyDomain, FieldLinkedInURL, FieldPhone, FieldLocation, FieldTimezone,
}

// Identity holds the canonical fields describing one real-world prospect.
type Identity struct {
	Email          string        `json:"email,omitempty"`
	FirstName      string        `json:"first_name,omitempty"`
	LastName       string        `json:"last_name,omitempty"`
	JobTitle       string        `json:"job_title,omitempty"`
	CompanyName    string        `json:"company_name,omitempty"`
	CompanyDomain  string        `json:"company_domain,omitempty"`
	LinkedInURL    string        `json:"linkedin_url,omitempty"`
	Phone          string        `json:"phone,omitempty"`
	Location       string        `json:"location,omitempty"`
	Timezone       string        `json:"timezone,omitempty"`
	Source         string        `json:"source,omitempty"`
	LastEnrichedAt *time.Time    `json:"last_enriched_at,omitempty"`
	Enrichment     payload.Value `json:"enrichment_data"`
}

// Field returns the value of a canonical identity field by name.
func (i Identity) Field(name string) string {
	switch name {
	case FieldEmail:
		return i.Email
	case FieldFirstName:
		return i.FirstName
	case FieldLastName:
		return i.LastName
	case FieldJobTitle:
		return i.JobTitle
	case FieldCompanyName:
		return i.CompanyName
	case FieldCompanyDomain:
		return i.CompanyDomain
	case FieldLinkedInURL:
		return i.LinkedInURL
	case FieldPhone:
		return i.Phone
	case FieldLocation:
		return i.Location
	case FieldTimezone:
		return i.Timezone
	case FieldSource:
		return i.Source
	default:
		return ""
	}
}

// FullName joins first and last name with a single space.
func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// SourceTags splits the comma-joined provenance list.
func (i Identity) SourceTags() []string {
	if i.Source == "" {
		return nil
	}
	parts := strings.Split(i.Source, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// Record is the normalizer's output: canonical identity plus any
// non-canonical keys carried through in snake_case.
type Record struct {
	Identity
	Extra map[string]payload.Value `json:"extra,omitempty"`
}

// Map renders the record back to a raw key/value map using canonical keys.
// Empty fields are omitted so the map can be fed back through the normalizer.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(IdentityFields)+len(r.Extra)+2)
	for k, v := range r.Extra {
		out[k] = v.ToAny()
	}
	for _, f := range IdentityFields {
		if v := r.Field(f); v != "" {
			out[f] = v
		}
	}
	if r.Source != "" {
		out[FieldSource] = r.Source
	}
	if !r.Enrichment.IsNull() {
		out[FieldEnrichment] = r.Enrichment.ToAny()
	}
	return out
}

// Prospect is the canonical, deduplicated record stored for one person.
type Prospect struct {
	ID string `json:"id"`
	Identity
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DedupAction is the write the loader must perform for a resolved record.
type DedupAction string

const (
	ActionInsert DedupAction = "insert"
	ActionUpdate DedupAction = "update"
)

// DedupMetadata describes how a record was matched.
type DedupMetadata struct {
	DuplicateFound bool     `json:"duplicate_found"`
	ExistingID     string   `json:"existing_id,omitempty"`
	MatchedBy      string   `json:"matched_by,omitempty"`
	FieldsUpdated  []string `json:"fields_updated,omitempty"`
}

// DeduplicationResult is the resolver's verdict for one record.
type DeduplicationResult struct {
	Action   DedupAction   `json:"action"`
	Prospect Prospect      `json:"prospect"`
	Metadata DedupMetadata `json:"metadata"`
}
