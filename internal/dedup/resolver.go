// Package dedup resolves canonical records against stored prospects and
// merges duplicates.
package dedup

import (
	"context"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

// DefaultThreshold is the minimum per-field similarity for a fuzzy match.
const DefaultThreshold = 0.8

// Match sources recorded in DedupMetadata.MatchedBy.
const (
	MatchEmail    = "email"
	MatchLinkedIn = "linkedin_url"
	MatchFuzzy    = "fuzzy_name_company"
)

// ProspectFinder is the lookup surface the resolver needs. Lookups return
// (nil, nil) when nothing matches.
type ProspectFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.Prospect, error)
	FindByLinkedInURL(ctx context.Context, url string) (*model.Prospect, error)
	FindByNameAndCompany(ctx context.Context, firstName, lastName, company string) ([]model.Prospect, error)
}

// Resolver handles prospect identity resolution.
type Resolver struct {
	store     ProspectFinder
	threshold float64
}

// NewResolver creates a resolver. A threshold outside (0, 1] uses DefaultThreshold.
func NewResolver(store ProspectFinder, threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{store: store, threshold: threshold}
}

// Resolve finds the stored prospect rec refers to, if any, and computes
// the write to perform. Match priority:
//  1. Exact email (case-insensitive)
//  2. Exact canonical LinkedIn URL
//  3. Fuzzy full name + company name
func (r *Resolver) Resolve(ctx context.Context, rec model.Identity) (*model.DeduplicationResult, error) {
	existing, by, err := r.find(ctx, rec)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return &model.DeduplicationResult{
			Action:   model.ActionInsert,
			Prospect: model.Prospect{Identity: rec},
		}, nil
	}

	merged, fields := Merge(existing.Identity, rec)
	p := *existing
	p.Identity = merged

	zap.L().Debug("dedup: matched existing prospect",
		zap.String("prospect_id", existing.ID),
		zap.String("matched_by", by),
		zap.Strings("fields_updated", fields),
	)

	return &model.DeduplicationResult{
		Action:   model.ActionUpdate,
		Prospect: p,
		Metadata: model.DedupMetadata{
			DuplicateFound: true,
			ExistingID:     existing.ID,
			MatchedBy:      by,
			FieldsUpdated:  fields,
		},
	}, nil
}

func (r *Resolver) find(ctx context.Context, rec model.Identity) (*model.Prospect, string, error) {
	if rec.Email != "" {
		p, err := r.store.FindByEmail(ctx, strings.ToLower(rec.Email))
		if err != nil {
			return nil, "", eris.Wrap(err, "dedup: find by email")
		}
		if p != nil {
			return p, MatchEmail, nil
		}
	}

	if rec.LinkedInURL != "" {
		p, err := r.store.FindByLinkedInURL(ctx, rec.LinkedInURL)
		if err != nil {
			return nil, "", eris.Wrap(err, "dedup: find by linkedin_url")
		}
		if p != nil {
			return p, MatchLinkedIn, nil
		}
	}

	if rec.FirstName == "" || rec.LastName == "" || rec.CompanyName == "" {
		return nil, "", nil
	}
	candidates, err := r.store.FindByNameAndCompany(ctx, rec.FirstName, rec.LastName, rec.CompanyName)
	if err != nil {
		return nil, "", eris.Wrap(err, "dedup: find by name and company")
	}
	if p := r.bestFuzzy(rec, candidates); p != nil {
		return p, MatchFuzzy, nil
	}
	return nil, "", nil
}

// bestFuzzy picks the candidate whose full name and company both clear the
// threshold. Candidates with more exact sub-matches win, then the higher
// combined score, then store order.
func (r *Resolver) bestFuzzy(rec model.Identity, candidates []model.Prospect) *model.Prospect {
	name := strings.ToLower(rec.FullName())
	company := strings.ToLower(rec.CompanyName)

	best := -1
	bestExact := -1
	bestScore := -1.0
	for i, c := range candidates {
		cName := strings.ToLower(c.FullName())
		cCompany := strings.ToLower(c.CompanyName)

		ns := Similarity(name, cName)
		cs := Similarity(company, cCompany)
		if ns < r.threshold || cs < r.threshold {
			continue
		}

		exact := 0
		if name == cName {
			exact++
		}
		if company == cCompany {
			exact++
		}
		score := ns + cs
		if exact > bestExact || (exact == bestExact && score > bestScore) {
			best, bestExact, bestScore = i, exact, score
		}
	}

	if best < 0 {
		return nil
	}
	p := candidates[best]
	return &p
}

// Similarity is (maxLen - editDistance) / maxLen over runes. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	d := levenshtein.Distance(a, b, nil)
	return float64(maxLen-d) / float64(maxLen)
}
