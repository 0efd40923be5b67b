package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-pipeline/internal/enrichment"
	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/pipeline"
)

func TestResolvePort_FlagSet(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
}

func TestResolvePort_FlagZero(t *testing.T) {
	assert.Equal(t, 8080, resolvePort(0, 8080))
}

func TestResolvePort_BothZero(t *testing.T) {
	assert.Equal(t, 0, resolvePort(0, 0))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 30*time.Second, seconds(30, time.Minute))
	assert.Equal(t, time.Minute, seconds(0, time.Minute))
	assert.Equal(t, time.Minute, seconds(-5, time.Minute))
}

func TestFormatBatchResult(t *testing.T) {
	res := &pipeline.BatchResult{
		RunID:       "run-0001",
		Processed:   2,
		Successful:  1,
		Quarantined: 1,
		Duration:    1500 * time.Millisecond,
		Details: []pipeline.RecordDetail{
			{StagingID: "stg12345-aaaa", Outcome: model.StagingProcessed, Action: model.ActionInsert, ProspectID: "pro12345-bbbb"},
			{StagingID: "stg67890-cccc", Outcome: model.StagingQuarantined},
		},
	}

	var buf bytes.Buffer
	formatBatchResult(&buf, res)

	out := buf.String()
	assert.Contains(t, out, "run-0001")
	assert.Contains(t, out, "Quarantined:")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "STAGING")
	assert.Contains(t, out, "stg12345")
	assert.Contains(t, out, "pro12345")
	assert.Contains(t, out, "insert")
	assert.Contains(t, out, "quarantined")
	assert.NotContains(t, out, "stg12345-aaaa")
}

func TestFormatBatchResult_Skipped(t *testing.T) {
	var buf bytes.Buffer
	formatBatchResult(&buf, &pipeline.BatchResult{Skipped: true})
	assert.Contains(t, buf.String(), "Skipped")
	assert.NotContains(t, buf.String(), "Processed")
}

func TestFormatStats(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &pipeline.Stats{
		Staging:    map[model.StagingStatus]int{model.StagingPending: 4, model.StagingProcessed: 10},
		Quarantine: map[model.ReviewStatus]int{model.ReviewPending: 2},
		LastRun:    &pipeline.RunInfo{RunID: "run-1", StartedAt: started, Processed: 14},
	}

	var buf bytes.Buffer
	formatStats(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "Staging:")
	assert.Contains(t, out, "pending:")
	assert.Contains(t, out, "10")
	assert.Contains(t, out, "fixed:")
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
	assert.Contains(t, out, "14 processed")
}

func TestFormatQuarantineList(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	recs := []model.QuarantineRecord{
		{
			ID:                "qqq12345-0000",
			Source:            "csv",
			Errors:            []string{"email is required"},
			CompletenessScore: 0.25,
			ReviewStatus:      model.ReviewPending,
			CreatedAt:         now,
		},
	}

	var buf bytes.Buffer
	formatQuarantineList(&buf, recs)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "qqq12345")
	assert.Contains(t, out, "csv")
	assert.Contains(t, out, "0.25")
	assert.Contains(t, out, "2026-03-01 09:15")
	assert.Contains(t, out, "email is required")
}

func TestFormatBatchSummary(t *testing.T) {
	s := &enrichment.BatchSummary{
		Total: 3, Successful: 1, Failed: 1, Skipped: 1,
		Details: []enrichment.ItemResult{
			{ProspectID: "p1", Success: true, Sources: []string{enrichment.SourcePerson}},
			{ProspectID: "p2", Error: "provider down"},
			{ProspectID: "p3", Skipped: true},
		},
	}

	var buf bytes.Buffer
	formatBatchSummary(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "Total:")
	assert.Contains(t, out, "peopledata_person")
	assert.Contains(t, out, "provider down")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "fresh")
}
