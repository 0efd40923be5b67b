package enrichment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/store"
	"github.com/sells-group/prospect-pipeline/pkg/peopledata"
)

type memProspects struct {
	mu      sync.Mutex
	byID    map[string]*model.Prospect
	updates int
	// beforeUpdate, when set, runs once ahead of the next Update.
	beforeUpdate func()
}

func newMemProspects(ps ...model.Prospect) *memProspects {
	m := &memProspects{byID: make(map[string]*model.Prospect)}
	for i := range ps {
		p := ps[i]
		m.byID[p.ID] = &p
	}
	return m
}

func (m *memProspects) FindByEmail(context.Context, string) (*model.Prospect, error) {
	return nil, nil
}

func (m *memProspects) FindByLinkedInURL(context.Context, string) (*model.Prospect, error) {
	return nil, nil
}

func (m *memProspects) FindByNameAndCompany(context.Context, string, string, string) ([]model.Prospect, error) {
	return nil, nil
}

func (m *memProspects) Insert(_ context.Context, p *model.Prospect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memProspects) Update(_ context.Context, p *model.Prospect) error {
	m.mu.Lock()
	hook := m.beforeUpdate
	m.beforeUpdate = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[p.ID]
	if !ok {
		return eris.Errorf("prospect not found: %s", p.ID)
	}
	if !cur.UpdatedAt.Equal(p.UpdatedAt) {
		return store.ErrConflict
	}
	p.UpdatedAt = p.UpdatedAt.Add(time.Microsecond)
	cp := *p
	m.byID[p.ID] = &cp
	m.updates++
	return nil
}

func (m *memProspects) Get(_ context.Context, id string) (*model.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProspects) BulkQuery(ctx context.Context, ids []string) ([]model.Prospect, error) {
	var out []model.Prospect
	for _, id := range ids {
		if p, _ := m.Get(ctx, id); p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProspects) stale(cutoff time.Time) []model.Prospect {
	var out []model.Prospect
	for _, p := range m.byID {
		if p.LastEnrichedAt == nil || p.LastEnrichedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastEnrichedAt, out[j].LastEnrichedAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out
}

func (m *memProspects) ListStale(_ context.Context, cutoff time.Time, limit int) ([]model.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stale(cutoff)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memProspects) CountStale(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stale(cutoff)), nil
}

type memEnrichments struct {
	mu      sync.Mutex
	records []model.EnrichmentData
	err     error
}

func (m *memEnrichments) Insert(_ context.Context, e *model.EnrichmentData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *e)
	return nil
}

func (m *memEnrichments) QueryRecent(_ context.Context, since time.Time) ([]model.EnrichmentData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EnrichmentData
	for _, e := range m.records {
		if !e.FetchedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEnrichments) LatestBySource(_ context.Context, prospectID string) (map[string]model.EnrichmentData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.EnrichmentData)
	for _, e := range m.records {
		if e.ProspectID != prospectID {
			continue
		}
		if cur, ok := out[e.Source]; !ok || e.FetchedAt.After(cur.FetchedAt) {
			out[e.Source] = e
		}
	}
	return out, nil
}

func (m *memEnrichments) Current(ctx context.Context, prospectID, source string) (*model.EnrichmentData, error) {
	latest, _ := m.LatestBySource(ctx, prospectID)
	e, ok := latest[source]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// stubAgent returns canned payloads, or an error for ids in fail.
type stubAgent struct {
	mu       sync.Mutex
	payloads []SourcePayload
	fail     map[string]error
	calls    []string
	delay    time.Duration
}

func (a *stubAgent) EnrichProspect(ctx context.Context, id string) ([]SourcePayload, error) {
	a.mu.Lock()
	a.calls = append(a.calls, id)
	a.mu.Unlock()
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := a.fail[id]; ok {
		return nil, err
	}
	return a.payloads, nil
}

// stubClient is a canned peopledata.Client.
type stubClient struct {
	person    *peopledata.Person
	personErr error
	site      *peopledata.CompanySite
	siteErr   error
	queries   []peopledata.PersonQuery
	domains   []string
}

func (c *stubClient) SearchPerson(_ context.Context, q peopledata.PersonQuery) (*peopledata.Person, error) {
	c.queries = append(c.queries, q)
	return c.person, c.personErr
}

func (c *stubClient) ScrapeCompany(_ context.Context, domain string) (*peopledata.CompanySite, error) {
	c.domains = append(c.domains, domain)
	return c.site, c.siteErr
}
