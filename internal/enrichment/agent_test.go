package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/pkg/peopledata"
)

func testProspect() model.Prospect {
	return model.Prospect{
		ID: "p1",
		Identity: model.Identity{
			Email:         "jane@acme.io",
			FirstName:     "Jane",
			LastName:      "Doe",
			CompanyName:   "Acme",
			CompanyDomain: "acme.io",
			LinkedInURL:   "https://linkedin.com/in/janedoe",
		},
	}
}

func TestProviderAgent_PersonAndCompany(t *testing.T) {
	client := &stubClient{
		person: &peopledata.Person{Found: true, FullName: "Jane Doe", Title: "CEO"},
		site:   &peopledata.CompanySite{Domain: "acme.io", Name: "Acme", Description: "Widgets"},
	}
	agent := NewProviderAgent(newMemProspects(testProspect()), client)

	out, err := agent.EnrichProspect(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, SourcePerson, out[0].Source)
	title, ok := out[0].Data.Get("title")
	require.True(t, ok)
	s, _ := title.String()
	assert.Equal(t, "CEO", s)

	assert.Equal(t, SourceCompany, out[1].Source)
	name, ok := out[1].Data.Get("name")
	require.True(t, ok)
	s, _ = name.String()
	assert.Equal(t, "Acme", s)

	require.Len(t, client.queries, 1)
	assert.Equal(t, peopledata.PersonQuery{
		Email:       "jane@acme.io",
		FirstName:   "Jane",
		LastName:    "Doe",
		Company:     "Acme",
		Domain:      "acme.io",
		LinkedInURL: "https://linkedin.com/in/janedoe",
	}, client.queries[0])
	assert.Equal(t, []string{"acme.io"}, client.domains)
}

func TestProviderAgent_ScrapeFailureKeepsPerson(t *testing.T) {
	client := &stubClient{
		person:  &peopledata.Person{Found: true, Title: "CEO"},
		siteErr: errors.New("site unreachable"),
	}
	agent := NewProviderAgent(newMemProspects(testProspect()), client)

	out, err := agent.EnrichProspect(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, SourcePerson, out[0].Source)
}

func TestProviderAgent_NoDomainSkipsScrape(t *testing.T) {
	p := testProspect()
	p.CompanyDomain = ""
	client := &stubClient{person: &peopledata.Person{Found: false}}
	agent := NewProviderAgent(newMemProspects(p), client)

	out, err := agent.EnrichProspect(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	found, ok := out[0].Data.Get("found")
	require.True(t, ok)
	assert.Equal(t, false, found.ToAny())
	assert.Empty(t, client.domains)
}

func TestProviderAgent_PersonErrorFails(t *testing.T) {
	client := &stubClient{personErr: errors.New("401 unauthorized")}
	agent := NewProviderAgent(newMemProspects(testProspect()), client)

	_, err := agent.EnrichProspect(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
	assert.Empty(t, client.domains)
}

func TestProviderAgent_ProspectNotFound(t *testing.T) {
	agent := NewProviderAgent(newMemProspects(), &stubClient{})

	_, err := agent.EnrichProspect(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prospect not found")
}
