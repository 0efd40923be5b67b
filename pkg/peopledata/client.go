// Package peopledata provides a client for the people-data provider used to
// enrich prospects: person search over the provider's JSON API and a
// lightweight scrape of the prospect's company website.
package peopledata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/resilience"
)

// Client defines the provider operations.
type Client interface {
	// SearchPerson looks up one person. A miss returns a Person with Found=false.
	SearchPerson(ctx context.Context, q PersonQuery) (*Person, error)
	// ScrapeCompany fetches the company homepage for domain and extracts its metadata.
	ScrapeCompany(ctx context.Context, domain string) (*CompanySite, error)
}

// PersonQuery identifies the person to search for. Email wins when set.
type PersonQuery struct {
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Domain      string `json:"domain,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// Person is the provider's profile for one person.
type Person struct {
	Found       bool           `json:"found"`
	FullName    string         `json:"full_name,omitempty"`
	Title       string         `json:"title,omitempty"`
	Seniority   string         `json:"seniority,omitempty"`
	Department  string         `json:"department,omitempty"`
	Company     string         `json:"company,omitempty"`
	LinkedInURL string         `json:"linkedin_url,omitempty"`
	Location    string         `json:"location,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Skills      []string       `json:"skills,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

type searchResponse struct {
	Person *Person `json:"person"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithSiteURL overrides how a company domain maps to its homepage URL.
func WithSiteURL(fn func(domain string) string) Option {
	return func(c *httpClient) {
		c.siteURL = fn
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the retry policy for provider calls.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	siteURL func(domain string) string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a new provider client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.peopledata.io",
		siteURL: func(domain string) string { return "https://" + domain },
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("peopledata", "request")
	}
	return c
}

// do sends the request built by newReq, retrying transient failures.
// Non-2xx responses are classified by resilience.StatusError.
func (c *httpClient) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, resilience.NewFatalError(err, 0)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "peopledata: read response body"), resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resilience.StatusError("peopledata", resp.StatusCode, string(body))
		}
		return body, nil
	})
}

func (c *httpClient) SearchPerson(ctx context.Context, q PersonQuery) (*Person, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "peopledata: marshal query")
	}

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/v1/people/search", c.baseURL), bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "peopledata: create search request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "peopledata: search person")
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "peopledata: unmarshal search response")
	}
	if resp.Person == nil {
		return &Person{Found: false}, nil
	}
	resp.Person.Found = true
	return resp.Person, nil
}
