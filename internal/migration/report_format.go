package migration

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Summary.Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// maxListedIssues caps the skip and error lines printed per plan in text output.
// Machine-readable formats always carry every entry.
const maxListedIssues = 20

// Totals aggregates the counters of several reports.
type Totals struct {
	Processed int64 `json:"processed" yaml:"processed"`
	Inserted  int64 `json:"inserted" yaml:"inserted"`
	Existing  int64 `json:"existing" yaml:"existing"`
	Skipped   int64 `json:"skipped" yaml:"skipped"`
	Errored   int64 `json:"errored" yaml:"errored"`
	Planned   int64 `json:"planned,omitempty" yaml:"planned,omitempty"`
}

// Summary is the end-of-command view over all plan reports.
type Summary struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	MinCoverage float64   `json:"min_coverage" yaml:"min_coverage"`
	Healthy     bool      `json:"healthy" yaml:"healthy"`
	Totals      Totals    `json:"totals" yaml:"totals"`
	Reports     []*Report `json:"reports" yaml:"reports"`
}

// Summarize aggregates reports and judges them against minCoverage.
func Summarize(runID string, reports []*Report, minCoverage float64) *Summary {
	s := &Summary{RunID: runID, MinCoverage: minCoverage, Healthy: true, Reports: reports}
	for _, r := range reports {
		s.Totals.Processed += r.Processed
		s.Totals.Inserted += r.Inserted
		s.Totals.Existing += r.Existing
		s.Totals.Skipped += r.Skipped
		s.Totals.Errored += r.Errored
		s.Totals.Planned += r.Planned
		if !r.Healthy(minCoverage) {
			s.Healthy = false
		}
	}
	return s
}

// Write renders the summary in one of the output formats.
func (s *Summary) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return s.writeText(w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.view())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s.view()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// reportView adds the derived percentages to a report for serialization.
type reportView struct {
	Report      `yaml:",inline"`
	SuccessRate float64 `json:"success_rate_percent" yaml:"success_rate_percent"`
	Coverage    float64 `json:"coverage_percent" yaml:"coverage_percent"`
	Verdict     string  `json:"verdict" yaml:"verdict"`
}

type summaryView struct {
	RunID       string       `json:"run_id" yaml:"run_id"`
	MinCoverage float64      `json:"min_coverage" yaml:"min_coverage"`
	Healthy     bool         `json:"healthy" yaml:"healthy"`
	Totals      Totals       `json:"totals" yaml:"totals"`
	Reports     []reportView `json:"reports" yaml:"reports"`
}

func (s *Summary) view() summaryView {
	v := summaryView{RunID: s.RunID, MinCoverage: s.MinCoverage, Healthy: s.Healthy, Totals: s.Totals}
	for _, r := range s.Reports {
		v.Reports = append(v.Reports, reportView{
			Report:      *r,
			SuccessRate: round2(r.SuccessRatePercent()),
			Coverage:    round2(r.CoveragePercent()),
			Verdict:     r.Verdict(s.MinCoverage),
		})
	}
	return v
}

func (s *Summary) writeText(w io.Writer) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	p.Fprintf(&b, "%-12s %10s %10s %10s %10s %10s %9s %9s\n",
		"PLAN", "PROCESSED", "INSERTED", "EXISTING", "SKIPPED", "ERRORED", "SUCCESS%", "COVERAGE")
	for _, r := range s.Reports {
		p.Fprintf(&b, "%-12s %10d %10d %10d %10d %10d %9s %8.2f%% %s\n",
			r.Plan, r.Processed, r.Inserted, r.Existing, r.Skipped, r.Errored,
			r.SuccessRate(), r.CoveragePercent(), r.Verdict(s.MinCoverage))
	}
	p.Fprintf(&b, "%-12s %10d %10d %10d %10d %10d\n",
		"TOTAL", s.Totals.Processed, s.Totals.Inserted, s.Totals.Existing, s.Totals.Skipped, s.Totals.Errored)
	if s.Totals.Planned > 0 {
		p.Fprintf(&b, "dry run: %d rows would have been inserted\n", s.Totals.Planned)
	}

	for _, r := range s.Reports {
		writeIssues(&b, r)
	}

	verdict := "✅ all plans reached"
	if !s.Healthy {
		verdict = "⚠️ some plans are below"
	}
	p.Fprintf(&b, "\n%s %.2f%% coverage\n", verdict, s.MinCoverage)

	_, err := io.WriteString(w, b.String())
	return err
}

// Legacy ids are identifiers, so issue lines are printed without digit grouping.
func writeIssues(b *strings.Builder, r *Report) {
	if len(r.Skips) == 0 && len(r.RowErrors) == 0 && len(r.BatchErrors) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", r.Plan)
	for _, be := range r.BatchErrors {
		fmt.Fprintf(b, "  batch %d (keys %d..%d, %d records) rejected: %s %s\n",
			be.Batch, be.FirstKey, be.LastKey, be.Records, be.Kind, be.Message)
	}
	for i, re := range r.RowErrors {
		if i == maxListedIssues {
			fmt.Fprintf(b, "  ... %d more row errors\n", len(r.RowErrors)-i)
			break
		}
		fmt.Fprintf(b, "  row %d errored (%s): %s\n", re.LegacyID, re.Category, re.Message)
	}
	for i, sk := range r.Skips {
		if i == maxListedIssues {
			fmt.Fprintf(b, "  ... %d more skipped rows\n", len(r.Skips)-i)
			break
		}
		fmt.Fprintf(b, "  row %d skipped: %s\n", sk.LegacyID, sk.Reason)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
