package peopledata

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// CompanySite is the metadata scraped from a company homepage.
type CompanySite struct {
	Domain      string            `json:"domain"`
	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Social      map[string]string `json:"social,omitempty"`
	Emails      []string          `json:"emails,omitempty"`
}

// socialHosts maps link hosts to the social network key stored on CompanySite.
var socialHosts = map[string]string{
	"linkedin.com": "linkedin",
	"twitter.com":  "twitter",
	"x.com":        "twitter",
	"facebook.com": "facebook",
	"github.com":   "github",
	"youtube.com":  "youtube",
}

func (c *httpClient) ScrapeCompany(ctx context.Context, domain string) (*CompanySite, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, eris.New("peopledata: empty company domain")
	}
	siteURL := c.siteURL(domain)

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "peopledata: create site request")
		}
		req.Header.Set("Accept", "text/html")
		req.Header.Set("User-Agent", "prospect-pipeline/1.0")
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "peopledata: scrape %s", domain)
	}

	return ParseCompanySite(domain, siteURL, body)
}

// ParseCompanySite extracts title, name, description, social links, and
// mailto addresses from a homepage.
func ParseCompanySite(domain, siteURL string, html []byte) (*CompanySite, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "peopledata: parse html")
	}

	site := &CompanySite{
		Domain: domain,
		URL:    siteURL,
		Title:  strings.TrimSpace(doc.Find("title").First().Text()),
		Social: map[string]string{},
	}

	site.Name = metaContent(doc, `meta[property="og:site_name"]`)
	site.Description = metaContent(doc, `meta[name="description"]`)
	if site.Description == "" {
		site.Description = metaContent(doc, `meta[property="og:description"]`)
	}

	emails := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(strings.ToLower(href), "mailto:") {
			addr := strings.ToLower(strings.TrimSpace(strings.SplitN(href[len("mailto:"):], "?", 2)[0]))
			if addr != "" {
				emails[addr] = true
			}
			return
		}
		u, err := url.Parse(href)
		if err != nil || u.Host == "" {
			return
		}
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		if key, ok := socialHosts[host]; ok {
			if _, seen := site.Social[key]; !seen {
				site.Social[key] = href
			}
		}
	})

	for e := range emails {
		site.Emails = append(site.Emails, e)
	}
	sort.Strings(site.Emails)
	return site, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}
