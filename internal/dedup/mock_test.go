package dedup

import (
	"context"
	"strings"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

type mockFinder struct {
	prospects  []model.Prospect
	err        error
	fuzzyCalls int
}

func (m *mockFinder) FindByEmail(_ context.Context, email string) (*model.Prospect, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.prospects {
		if strings.EqualFold(p.Email, email) {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (m *mockFinder) FindByLinkedInURL(_ context.Context, url string) (*model.Prospect, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.prospects {
		if p.LinkedInURL != "" && p.LinkedInURL == url {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (m *mockFinder) FindByNameAndCompany(_ context.Context, _, _, _ string) ([]model.Prospect, error) {
	m.fuzzyCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.prospects, nil
}
