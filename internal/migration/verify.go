package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// verifyConcurrency bounds the count queries in flight per store.
const verifyConcurrency = 4

// RemoteCounter counts migrated rows through another channel than the target
// database connection, e.g. the Supabase REST endpoint.
type RemoteCounter interface {
	CountNotNull(ctx context.Context, table, column string) (int64, error)
}

// Coverage compares the source and target row counts of one plan.
type Coverage struct {
	Plan   string `json:"plan" yaml:"plan"`
	Table  string `json:"table" yaml:"table"`
	Source int64  `json:"source_rows" yaml:"source_rows"`
	Target int64  `json:"target_rows" yaml:"target_rows"`
	// Remote is the target count reported by the RemoteCounter, when one is used.
	Remote *int64 `json:"remote_rows,omitempty" yaml:"remote_rows,omitempty"`
}

// Percent is the share of source rows present in the target.
func (c Coverage) Percent() float64 {
	if c.Source == 0 {
		return 100
	}
	return percent(c.Target, c.Source)
}

// Healthy reports whether the coverage reaches minCoverage and the remote count,
// if any, agrees with the database count.
func (c Coverage) Healthy(minCoverage float64) bool {
	if c.Remote != nil && *c.Remote != c.Target {
		return false
	}
	return c.Percent() >= minCoverage
}

// Verify counts source rows and migrated target rows for every plan. remote may be nil.
func Verify(ctx context.Context, source, target *datastore.Store, plans []*Plan, remote RemoteCounter) ([]Coverage, error) {
	results := make([]Coverage, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)

	for i, plan := range plans {
		results[i] = Coverage{Plan: plan.Name, Table: plan.Target.Table}
		column := plan.Target.LegacyIDColumn
		if column == "" {
			column = plan.Target.ConflictColumns[0]
		}

		g.Go(func() error {
			n, err := CountSource(gctx, source.DB(), plan.Source)
			if err != nil {
				return err
			}
			results[i].Source = n
			return nil
		})
		g.Go(func() error {
			n, err := CountMigrated(gctx, target.DB(), plan.Target.Table, column)
			if err != nil {
				return err
			}
			results[i].Target = n
			return nil
		})
		if remote != nil {
			g.Go(func() error {
				n, err := remote.CountNotNull(gctx, plan.Target.Table, column)
				if err != nil {
					return err
				}
				results[i].Remote = &n
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CountMigrated counts rows of table whose legacy id column is set.
func CountMigrated(ctx context.Context, db *gorm.DB, table, column string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Table(table).
		Where(clause.Expr{SQL: "? IS NOT NULL", Vars: []any{clause.Column{Name: column}}}).
		Count(&count).Error
	if err != nil {
		return 0, errors.New(fmt.Errorf("count migrated rows in %s: %w", table, err)).
			Component("migration").
			Category(errors.CategoryDatabase).
			Context("table", table).
			Build()
	}
	return count, nil
}

type coverageView struct {
	Coverage `yaml:",inline"`
	Percent  float64 `json:"coverage_percent" yaml:"coverage_percent"`
	Verdict  string  `json:"verdict" yaml:"verdict"`
}

// WriteCoverage renders coverage results in one of the output formats.
func WriteCoverage(w io.Writer, format string, results []Coverage, minCoverage float64) error {
	views := make([]coverageView, len(results))
	healthy := true
	for i, c := range results {
		verdict := "✅"
		if !c.Healthy(minCoverage) {
			verdict = "⚠️"
			healthy = false
		}
		views[i] = coverageView{Coverage: c, Percent: round2(c.Percent()), Verdict: verdict}
	}

	switch strings.ToLower(format) {
	case "", FormatText:
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "%-12s %-12s %10s %10s %10s %9s\n", "PLAN", "TABLE", "SOURCE", "TARGET", "REMOTE", "COVERAGE")
	for _, v := range views {
		remote := "-"
		if v.Remote != nil {
			remote = p.Sprintf("%d", *v.Remote)
		}
		p.Fprintf(&b, "%-12s %-12s %10d %10d %10s %8.2f%% %s\n",
			v.Plan, v.Table, v.Source, v.Target, remote, v.Percent, v.Verdict)
	}
	verdict := "✅ all plans reached"
	if !healthy {
		verdict = "⚠️ some plans are below"
	}
	p.Fprintf(&b, "\n%s %.2f%% coverage\n", verdict, minCoverage)
	_, err := io.WriteString(w, b.String())
	return err
}
