// Package normalize converts raw, heterogeneously keyed prospect records
// into canonical records. Every function here is pure and idempotent.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/payload"
)

// Normalizer applies the canonicalization rules backed by a set of tables.
type Normalizer struct {
	tables *Tables
}

// New creates a Normalizer. A nil tables argument uses the embedded defaults.
func New(t *Tables) *Normalizer {
	if t == nil {
		t = DefaultTables()
	}
	return &Normalizer{tables: t}
}

// Normalize canonicalizes raw using the embedded tables.
func Normalize(raw map[string]any) model.Record {
	return New(nil).Normalize(raw)
}

// Normalize canonicalizes keys and values of one raw record. Keys that are
// not canonical identity fields are carried in Extra under their snake_case
// name. When several raw keys collapse to the same canonical key, an exact
// canonical key wins, then the first non-empty value in key order.
func (n *Normalizer) Normalize(raw map[string]any) model.Record {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(map[string]string, len(model.IdentityFields)+1)
	exact := make(map[string]bool)
	rec := model.Record{}

	for _, k := range keys {
		v := raw[k]
		ck := CanonicalKey(k)
		if ck == "" {
			continue
		}
		switch {
		case ck == model.FieldEnrichment:
			if v != nil && (rec.Enrichment.IsNull() || k == ck) {
				rec.Enrichment = payload.FromAny(v)
			}
		case isIdentityKey(ck):
			s := stringify(v)
			if s == "" {
				continue
			}
			if _, seen := fields[ck]; seen && (exact[ck] || k != ck) {
				continue
			}
			fields[ck] = s
			exact[ck] = k == ck
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]payload.Value)
			}
			if _, seen := rec.Extra[ck]; seen && k != ck {
				continue
			}
			rec.Extra[ck] = payload.FromAny(v)
		}
	}

	rec.Email = Email(fields[model.FieldEmail])
	rec.FirstName = collapse(fields[model.FieldFirstName])
	rec.LastName = collapse(fields[model.FieldLastName])
	rec.JobTitle = n.JobTitle(fields[model.FieldJobTitle])
	rec.CompanyName = n.CompanyName(fields[model.FieldCompanyName])
	rec.CompanyDomain = Domain(fields[model.FieldCompanyDomain])
	rec.LinkedInURL = LinkedInURL(fields[model.FieldLinkedInURL])
	rec.Phone = Phone(fields[model.FieldPhone])
	rec.Location = n.Location(fields[model.FieldLocation])
	rec.Timezone = n.Timezone(fields[model.FieldTimezone], rec.Location)
	rec.Source = collapse(fields[model.FieldSource])
	return rec
}

func isIdentityKey(k string) bool {
	if k == model.FieldSource {
		return true
	}
	for _, f := range model.IdentityFields {
		if f == k {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
