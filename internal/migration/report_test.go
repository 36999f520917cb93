package migration

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSuccessRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		report    Report
		want      string
		coverage  float64
		balanced  bool
		healthyAt bool
	}{
		{"all inserted", Report{Processed: 963, Inserted: 963}, "100.00", 100, true, true},
		{"nothing processed", Report{}, "0.00", 0, true, true},
		{"one skipped", Report{Processed: 3, Inserted: 2, Skipped: 1}, "66.67", 200.0 / 3, true, false},
		{"rerun", Report{Processed: 3, Existing: 2, Skipped: 1}, "0.00", 200.0 / 3, true, false},
		{"mostly existing", Report{Processed: 20, Inserted: 1, Existing: 18, Errored: 1}, "5.00", 95, true, true},
		{"unbalanced", Report{Processed: 5, Inserted: 2}, "40.00", 40, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.SuccessRate())
			assert.InDelta(t, tt.coverage, tt.report.CoveragePercent(), 1e-9)
			assert.Equal(t, tt.balanced, tt.report.Balanced())
			assert.Equal(t, tt.healthyAt, tt.report.Healthy(DefaultMinCoverage))
		})
	}
}

func TestVerdict(t *testing.T) {
	t.Parallel()
	r := &Report{Processed: 10, Inserted: 9, Skipped: 1}
	assert.Equal(t, "✅", r.Verdict(90))
	assert.Equal(t, "⚠️", r.Verdict(95))
}

func sampleReports() []*Report {
	unresolved := int64(2)
	return []*Report{
		{Plan: "doctors", Table: "doctors", Processed: 1200, Inserted: 1200},
		{
			Plan: "patients", Table: "patients", Processed: 3, Inserted: 2, Skipped: 1,
			Skips: []SkipDetail{{LegacyID: 2, Lookup: "doctors", UnresolvedID: &unresolved, Reason: "legacy id 2 not found in doctors lookup", Batch: 1}},
		},
	}
}

func TestSummaryText(t *testing.T) {
	t.Parallel()
	s := Summarize("run-1", sampleReports(), DefaultMinCoverage)
	assert.False(t, s.Healthy)
	assert.Equal(t, int64(1203), s.Totals.Processed)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, FormatText))
	out := buf.String()

	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "100.00")
	assert.Contains(t, out, "66.67")
	assert.Contains(t, out, "row 2 skipped: legacy id 2 not found in doctors lookup")
	assert.Contains(t, out, "⚠️ some plans are below 90.00% coverage")
}

func TestSummaryTextTruncatesIssues(t *testing.T) {
	t.Parallel()
	r := &Report{Plan: "orders", Processed: 30, Skipped: 30}
	for i := range 30 {
		r.Skips = append(r.Skips, SkipDetail{LegacyID: int64(i + 1), Reason: "x"})
	}
	var buf bytes.Buffer
	require.NoError(t, Summarize("run", []*Report{r}, 90).Write(&buf, FormatText))
	assert.Contains(t, buf.String(), "... 10 more skipped rows")
}

func TestSummaryJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Summarize("run-1", sampleReports(), 90).Write(&buf, FormatJSON))

	var decoded struct {
		RunID   string `json:"run_id"`
		Healthy bool   `json:"healthy"`
		Reports []struct {
			Plan        string  `json:"plan"`
			SuccessRate float64 `json:"success_rate_percent"`
			Verdict     string  `json:"verdict"`
			Skips       []struct {
				LegacyID int64 `json:"legacy_id"`
			} `json:"skips"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Reports, 2)
	assert.InDelta(t, 100.0, decoded.Reports[0].SuccessRate, 0)
	assert.InDelta(t, 66.67, decoded.Reports[1].SuccessRate, 0)
	assert.Equal(t, "✅", decoded.Reports[0].Verdict)
	require.Len(t, decoded.Reports[1].Skips, 1)
	assert.Equal(t, int64(2), decoded.Reports[1].Skips[0].LegacyID)
}

func TestSummaryYAML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Summarize("run-1", sampleReports(), 90).Write(&buf, FormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	reports, ok := decoded["reports"].([]any)
	require.True(t, ok)
	first, ok := reports[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "doctors", first["plan"])
	assert.Equal(t, 1200, first["inserted"])
	assert.InDelta(t, 100.0, first["success_rate_percent"], 0)
}

func TestSummaryUnknownFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Error(t, Summarize("run", nil, 90).Write(&buf, "xml"))
}
