// Package plans holds the entity migration plans from the legacy dispatch schema to
// the normalized target schema.
package plans

import (
	"fmt"
	"slices"

	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/migration"
)

// Registry returns every plan in dependency order: a plan's lookups only read
// targets of plans listed before it.
func Registry() []*migration.Plan {
	return []*migration.Plan{
		Profiles(),
		Doctors(),
		Patients(),
		Orders(),
		Comments(),
	}
}

// Names lists the registered plan names in run order.
func Names() []string {
	registry := Registry()
	names := make([]string, len(registry))
	for i, p := range registry {
		names[i] = p.Name
	}
	return names
}

// Select returns the named plans in registry order. No names selects every plan.
func Select(names ...string) ([]*migration.Plan, error) {
	registry := Registry()
	if len(names) == 0 {
		return registry, nil
	}

	known := Names()
	var unknown []string
	for _, name := range names {
		if !slices.Contains(known, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, errors.New(fmt.Errorf("unknown plans %v, registered plans are %v", unknown, known)).
			Component("plans").
			Category(errors.CategoryValidation).
			Build()
	}

	selected := make([]*migration.Plan, 0, len(names))
	for _, p := range registry {
		if slices.Contains(names, p.Name) {
			selected = append(selected, p)
		}
	}
	return selected, nil
}
