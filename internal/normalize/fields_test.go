package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTitle(t *testing.T) {
	t.Parallel()

	n := New(nil)
	tests := []struct{ in, want string }{
		{"VP Sales", "VP of Sales"},
		{"vp,  sales", "VP of Sales"},
		{"VP of Sales", "VP of Sales"},
		{"chief executive officer", "CEO"},
		{"head of growth and partnerships", "Head of Growth and Partnerships"},
		{"THE head of marketing", "The Head of Marketing"},
		{"senior hr business partner", "Senior HR Business Partner"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.JobTitle(tt.in), tt.in)
	}
}

func TestCompanyName(t *testing.T) {
	t.Parallel()

	n := New(nil)
	tests := []struct{ in, want string }{
		{"Example Corp, Inc.", "Example Corp"},
		{"Example Corp", "Example Corp"},
		{"Acme Corp.", "Acme"},
		{"Acme, Corporation", "Acme"},
		{"Acme LLC", "Acme"},
		{"Acme Holdings Ltd.", "Acme Holdings"},
		{"Initech, L.L.C.", "Initech"},
		{"Globex GmbH", "Globex"},
		{"Google LLC", "Google"},
		{"facebook, inc.", "Meta"},
		{"Inc.", "Inc."},
		{"  Big   Data  Co. ", "Big Data"},
	}
	for _, tt := range tests {
		got := n.CompanyName(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got, n.CompanyName(got), "idempotent: %s", tt.in)
	}
}

func TestLocation(t *testing.T) {
	t.Parallel()

	n := New(nil)
	tests := []struct{ in, want string }{
		{"SF", "San Francisco, CA, USA"},
		{"new york city", "New York, NY, USA"},
		{"austin , tx", "Austin, TX, USA"},
		{"portland, or, usa", "Portland, OR, USA"},
		{"isle of man", "Isle of Man"},
		{"", ""},
	}
	for _, tt := range tests {
		got := n.Location(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got, n.Location(got), "idempotent: %s", tt.in)
	}
}

func TestPhone(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"5551234567", "+1 (555) 123-4567"},
		{"(555) 123-4567", "+1 (555) 123-4567"},
		{"1-555-123-4567", "+1 (555) 123-4567"},
		{"+44 20 7946 0958", "+44 20 7946 0958"},
		{"+1 (555) 123-4567", "+1 (555) 123-4567"},
		{"020 7946 0958", "02079460958"},
		{"n/a", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Phone(tt.in), tt.in)
	}
}

func TestLinkedInURL(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"https://linkedin.com/pub/john-doe", "https://www.linkedin.com/in/john-doe"},
		{"https://linkedin.com/pub/john-doe/12/345/678", "https://www.linkedin.com/in/john-doe"},
		{"http://www.LinkedIn.com/in/Jane-Roe/?trk=abc", "https://www.linkedin.com/in/jane-roe"},
		{"linkedin.com/in/jane", "https://www.linkedin.com/in/jane"},
		{"https://www.linkedin.com/profile/view?id=12345&authType=name", "https://www.linkedin.com/in/12345"},
		{"https://www.linkedin.com/profile/view?trk=x&id=abc", "https://www.linkedin.com/in/abc"},
		{"https://example.com/jane", "https://example.com/jane"},
	}
	for _, tt := range tests {
		got := LinkedInURL(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got, LinkedInURL(got))
	}
}

func TestTimezone(t *testing.T) {
	t.Parallel()

	n := New(nil)
	assert.Equal(t, "Europe/Paris", n.Timezone(" Europe/Paris ", "Austin, TX, USA"))
	assert.Equal(t, "America/Chicago", n.Timezone("", "Austin, TX, USA"))
	assert.Equal(t, "America/Los_Angeles", n.Timezone("", "San Francisco, CA, USA"))
	assert.Equal(t, "America/Los_Angeles", n.Timezone("", "Fresno, CA"))
	assert.Equal(t, "America/New_York", n.Timezone("", "Hoboken, NJ"))
	assert.Equal(t, "Europe/London", n.Timezone("", "London, England, UK"))
	assert.Equal(t, "UTC", n.Timezone("", "Calgary, AB, Canada"))
	assert.Equal(t, "UTC", n.Timezone("", ""))
}

func TestParseTables_SelfMapsCanonicalValues(t *testing.T) {
	t.Parallel()

	tb, err := ParseTables([]byte("job_titles:\n  vp sales: VP of Sales\n"))
	require.NoError(t, err)
	assert.Equal(t, "VP of Sales", tb.JobTitles["vp sales"])
	assert.Equal(t, "VP of Sales", tb.JobTitles["vp of sales"])

	_, err = ParseTables([]byte("job_titles: [unclosed"))
	assert.Error(t, err)
}

func TestBareDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", BareDomain("https://www.Example.com/about"))
	assert.Equal(t, "example.com", BareDomain("example.com"))
	assert.Equal(t, "sub.example.com", BareDomain("http://sub.example.com?x=1"))
	assert.Equal(t, "", BareDomain("  "))
}
