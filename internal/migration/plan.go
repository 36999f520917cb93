package migration

import (
	"fmt"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// TransformFunc maps a source row to a target record. Returning a *SkipError
// classifies the row as SKIPPED; any other error classifies it as ERRORED. A nil
// record with a nil error excludes the row and is reported as a skip.
type TransformFunc func(row SourceRow, lookups *Lookups) (Record, error)

// Plan configures one migration pass from a source query to a target table.
type Plan struct {
	Name        string
	Description string
	Source      SourceSpec
	Lookups     []LookupSpec
	Transform   TransformFunc
	Target      TargetSpec
	// BatchSize is the plan's preferred batch size; Options.BatchSize overrides it.
	BatchSize int
	// RowFallback retries every record of a failed batch individually.
	RowFallback bool
	// DependsOn names plans whose targets this plan's lookups read.
	DependsOn []string
}

// Validate checks that the plan can run.
func (p *Plan) Validate() error {
	var problems []error
	if p.Name == "" {
		problems = append(problems, fmt.Errorf("plan name is required"))
	}
	if err := p.Source.validate(); err != nil {
		problems = append(problems, err)
	}
	if err := p.Target.validate(); err != nil {
		problems = append(problems, err)
	}
	if p.Transform == nil {
		problems = append(problems, fmt.Errorf("transform is required"))
	}
	if p.BatchSize < 0 || p.BatchSize > conf.MaxBatchSize {
		problems = append(problems, fmt.Errorf("batch size %d out of range [%d, %d]", p.BatchSize, conf.MinBatchSize, conf.MaxBatchSize))
	}
	names := make(map[string]struct{}, len(p.Lookups))
	for _, spec := range p.Lookups {
		if err := spec.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		if _, dup := names[spec.Name]; dup {
			problems = append(problems, fmt.Errorf("lookup %q is declared twice", spec.Name))
		}
		names[spec.Name] = struct{}{}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(fmt.Errorf("invalid plan %q: %w", p.Name, errors.Join(problems...))).
		Component("migration").
		Category(errors.CategoryValidation).
		Context("plan", p.Name).
		Build()
}

// LookupTables lists the target tables the plan's lookups read.
func (p *Plan) LookupTables() []string {
	tables := make([]string, 0, len(p.Lookups))
	for _, spec := range p.Lookups {
		tables = append(tables, spec.Table)
	}
	return tables
}
