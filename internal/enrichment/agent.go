// Package enrichment drives stale prospects through the external
// people-data provider at a capped rate and records what comes back.
package enrichment

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/payload"
	"github.com/sells-group/prospect-pipeline/internal/store"
	"github.com/sells-group/prospect-pipeline/pkg/peopledata"
)

// Enrichment sources written by ProviderAgent.
const (
	SourcePerson  = "peopledata_person"
	SourceCompany = "peopledata_company"
)

// SourcePayload is the data one source returned for a prospect.
type SourcePayload struct {
	Source string
	Data   payload.Value
}

// Agent enriches one prospect by id.
type Agent interface {
	EnrichProspect(ctx context.Context, prospectID string) ([]SourcePayload, error)
}

// ProviderAgent enriches prospects through the people-data provider:
// a person search and, when the prospect has a company domain, a scrape
// of the company homepage.
type ProviderAgent struct {
	prospects store.ProspectStore
	client    peopledata.Client
}

// NewProviderAgent creates a ProviderAgent.
func NewProviderAgent(prospects store.ProspectStore, client peopledata.Client) *ProviderAgent {
	return &ProviderAgent{prospects: prospects, client: client}
}

// EnrichProspect loads the prospect and queries the provider. A failed
// person search fails the prospect; a failed site scrape is logged and
// dropped.
func (a *ProviderAgent) EnrichProspect(ctx context.Context, prospectID string) ([]SourcePayload, error) {
	p, err := a.prospects.Get(ctx, prospectID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrichment: load prospect %s", prospectID)
	}
	if p == nil {
		return nil, eris.Errorf("enrichment: prospect not found: %s", prospectID)
	}

	person, err := a.client.SearchPerson(ctx, personQuery(p))
	if err != nil {
		return nil, eris.Wrapf(err, "enrichment: search person %s", prospectID)
	}
	personData, err := toPayload(person)
	if err != nil {
		return nil, err
	}
	out := []SourcePayload{{Source: SourcePerson, Data: personData}}

	if p.CompanyDomain == "" {
		return out, nil
	}
	site, err := a.client.ScrapeCompany(ctx, p.CompanyDomain)
	if err != nil {
		zap.L().Warn("enrichment: company scrape failed",
			zap.String("prospect_id", prospectID),
			zap.String("domain", p.CompanyDomain),
			zap.Error(err),
		)
		return out, nil
	}
	siteData, err := toPayload(site)
	if err != nil {
		return nil, err
	}
	return append(out, SourcePayload{Source: SourceCompany, Data: siteData}), nil
}

func personQuery(p *model.Prospect) peopledata.PersonQuery {
	return peopledata.PersonQuery{
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Company:     p.CompanyName,
		Domain:      p.CompanyDomain,
		LinkedInURL: p.LinkedInURL,
	}
}

// toPayload converts a provider struct to a payload via its JSON form.
func toPayload(v any) (payload.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return payload.Null(), eris.Wrap(err, "enrichment: marshal provider result")
	}
	var out payload.Value
	if err := json.Unmarshal(b, &out); err != nil {
		return payload.Null(), eris.Wrap(err, "enrichment: decode provider result")
	}
	return out, nil
}
