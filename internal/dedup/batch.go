package dedup

import (
	"strings"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

// Item is one record entering batch pre-merge, tagged with the staging
// record it came from.
type Item struct {
	Ref      string
	Identity model.Identity
}

// Group is the folded result of every batch item sharing an identity key.
type Group struct {
	Key      string
	Identity model.Identity
	Refs     []string
}

// IdentityKey returns the batch identity key: email, else linkedin_url,
// else a first|last|company composite.
func IdentityKey(id model.Identity) string {
	if id.Email != "" {
		return "email:" + strings.ToLower(id.Email)
	}
	if id.LinkedInURL != "" {
		return "linkedin:" + strings.ToLower(id.LinkedInURL)
	}
	return "name:" + strings.ToLower(strings.Join([]string{id.FirstName, id.LastName, id.CompanyName}, "|"))
}

// PreMerge folds items sharing an identity key with the same rules as
// Merge, in input order. Groups are returned in order of first appearance.
func PreMerge(items []Item) []Group {
	idx := make(map[string]int, len(items))
	groups := make([]Group, 0, len(items))

	for _, it := range items {
		key := IdentityKey(it.Identity)
		if i, ok := idx[key]; ok {
			merged, _ := Merge(groups[i].Identity, it.Identity)
			groups[i].Identity = merged
			groups[i].Refs = append(groups[i].Refs, it.Ref)
			continue
		}
		idx[key] = len(groups)
		groups = append(groups, Group{Key: key, Identity: it.Identity, Refs: []string{it.Ref}})
	}
	return groups
}
