package intake

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadCSV_HeaderMapping(t *testing.T) {
	in := "\ufeffEmail,First Name,Last Name,Company\n" +
		"j.doe@example.com, John ,Doe,Example Corp\n" +
		"a@b.com,Ann,,\n" +
		",,,\n"

	recs, err := ReadCSV(context.Background(), strings.NewReader(in), Options{Source: "csv"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, map[string]any{
		"Email":      "j.doe@example.com",
		"First Name": "John",
		"Last Name":  "Doe",
		"Company":    "Example Corp",
	}, recs[0].RawData)
	assert.Equal(t, "csv", recs[0].Source)
	assert.Equal(t, map[string]any{"Email": "a@b.com", "First Name": "Ann"}, recs[1].RawData)
}

func TestReadCSV_Empty(t *testing.T) {
	recs, err := ReadCSV(context.Background(), strings.NewReader(""), Options{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadCSV_RaggedRows(t *testing.T) {
	in := "email,first_name\na@b.com,Ann,extra\nc@d.com\n"
	recs, err := ReadCSV(context.Background(), strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]any{"email": "a@b.com", "first_name": "Ann"}, recs[0].RawData)
	assert.Equal(t, map[string]any{"email": "c@d.com"}, recs[1].RawData)
	assert.Equal(t, DefaultSource, recs[0].Source)
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("email\na@b.com\n"), Options{})
	require.Error(t, err)
}

func TestReadFile_TSV(t *testing.T) {
	path := writeTestFile(t, "Apollo.tsv", "email\tfirst_name\na@b.com\tAnn\n")
	recs, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "apollo", recs[0].Source)
	assert.Equal(t, "Ann", recs[0].RawData["first_name"])
}

func TestReadFile_JSONArray(t *testing.T) {
	path := writeTestFile(t, "leads.json", `[
		{"email": "a@b.com", "enrichment_data": {"seniority": "vp"}},
		{},
		{"email": "c@d.com"}
	]`)
	recs, err := ReadFile(context.Background(), path, Options{Source: "crm"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "crm", recs[0].Source)
	assert.Equal(t, map[string]any{"seniority": "vp"}, recs[0].RawData["enrichment_data"])
	assert.Equal(t, "c@d.com", recs[1].RawData["email"])
}

func TestReadJSON_Lines(t *testing.T) {
	in := "\n{\"email\":\"a@b.com\"}\n{\"email\":\"c@d.com\"}\n"
	recs, err := ReadJSON(context.Background(), strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c@d.com", recs[1].RawData["email"])
}

func TestReadJSON_Invalid(t *testing.T) {
	_, err := ReadJSON(context.Background(), strings.NewReader(`{"email": `), Options{})
	require.Error(t, err)
}

func TestReadFile_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"email", "first_name", "company_name"},
			{"a@b.com", "Ann", "Acme"},
			{"", "", ""},
			{"c@d.com", "", "Beta"},
		},
	})
	recs, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "leads", recs[0].Source)
	assert.Equal(t, map[string]any{"email": "a@b.com", "first_name": "Ann", "company_name": "Acme"}, recs[0].RawData)
	assert.Equal(t, map[string]any{"email": "c@d.com", "company_name": "Beta"}, recs[1].RawData)
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Notes": {{"ignore"}},
		"Leads": {{"email"}, {"x@y.com"}},
	})

	recs, err := ReadXLSX(path, Options{SheetName: "Leads"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "x@y.com", recs[0].RawData["email"])

	_, err = ReadXLSX(path, Options{SheetName: "Missing"})
	require.Error(t, err)

	_, err = ReadXLSX(path, Options{SheetIndex: 5})
	require.Error(t, err)
}

func TestReadFile_Unsupported(t *testing.T) {
	path := writeTestFile(t, "leads.txt", "hello")
	_, err := ReadFile(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	require.Error(t, err)
}

func TestLoad_Chunks(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	recs := make([]model.StagingRecord, 5)
	for i := range recs {
		recs[i] = model.StagingRecord{RawData: map[string]any{"n": float64(i)}, Source: "csv"}
	}
	n, err := Load(ctx, st.Staging(), recs, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	counts, err := st.Staging().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[model.StagingPending])
}
