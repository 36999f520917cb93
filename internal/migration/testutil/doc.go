// Package testutil provides test helpers for migration tests.
// This includes legacy row builders, legacy database seeding and store setup.
//
// Key components:
//   - Builders: Fluent API for creating legacy dispatch rows with sensible defaults
//   - LegacySeeder: Direct SQL-based seeding for the legacy dispatch_* tables
//   - TestContext: Source and target SQLite stores with teardown
package testutil
