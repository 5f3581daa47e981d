package migrations

import (
	"sort"
	"sync"
)

// defaultRegistry collects the migrations each version file registers from
// its init func.
var defaultRegistry = &schemaRegistry{}

// schemaRegistry implements MigrationRegistry with a slice kept in ascending
// version order, so readers never sort. Registering a version twice replaces
// the earlier entry.
type schemaRegistry struct {
	mu      sync.RWMutex
	ordered []MajorMigrationInterface
}

func (r *schemaRegistry) Register(migration MajorMigrationInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version := migration.GetMajorVersion()
	idx := r.search(version)
	if idx < len(r.ordered) && r.ordered[idx].GetMajorVersion() == version {
		r.ordered[idx] = migration
		return
	}
	r.ordered = append(r.ordered, nil)
	copy(r.ordered[idx+1:], r.ordered[idx:])
	r.ordered[idx] = migration
}

// GetMigrations returns the registered migrations in ascending version order.
func (r *schemaRegistry) GetMigrations() []MajorMigrationInterface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MajorMigrationInterface, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// GetMigration looks up one migration by its major version.
func (r *schemaRegistry) GetMigration(version float64) (MajorMigrationInterface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.search(version)
	if idx < len(r.ordered) && r.ordered[idx].GetMajorVersion() == version {
		return r.ordered[idx], true
	}
	return nil, false
}

// search returns the insertion point for version. Callers hold r.mu.
func (r *schemaRegistry) search(version float64) int {
	return sort.Search(len(r.ordered), func(i int) bool {
		return r.ordered[i].GetMajorVersion() >= version
	})
}

// Register adds a migration to the process-wide registry.
func Register(migration MajorMigrationInterface) {
	defaultRegistry.Register(migration)
}

// GetRegisteredMigrations returns every registered migration, oldest version
// first.
func GetRegisteredMigrations() []MajorMigrationInterface {
	return defaultRegistry.GetMigrations()
}

// GetRegisteredMigration returns the migration for one major version.
func GetRegisteredMigration(version float64) (MajorMigrationInterface, bool) {
	return defaultRegistry.GetMigration(version)
}
