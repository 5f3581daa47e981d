package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

// ErrRestartRequired is returned when a migration requires a server restart
var ErrRestartRequired = errors.New("migration completed successfully - server restart required")

// Manager implements MigrationManager
type Manager struct {
	logger logger.Logger
}

// NewManager creates a new migration manager
func NewManager(logger logger.Logger) *Manager {
	return &Manager{logger: logger}
}

// GetCurrentDBVersion retrieves the current database version from settings table
func (m *Manager) GetCurrentDBVersion(ctx context.Context, db *sql.DB) (float64, error, bool) {
	var versionStr string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = 'db_version'").Scan(&versionStr)
	if err != nil {
		if err == sql.ErrNoRows {
			// No version found
			return 0, nil, false
		}
		return 0, fmt.Errorf("failed to get current database version: %w", err), false
	}

	// Parse as integer since we only store major version
	version, err := strconv.ParseFloat(versionStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid database version format '%s': %w", versionStr, err), false
	}

	return version, nil, true
}

// SetCurrentDBVersion updates the current database version in settings table
func (m *Manager) SetCurrentDBVersion(ctx context.Context, db *sql.DB, version float64) error {
	// Store only the major version as an integer
	versionStr := fmt.Sprintf("%.0f", version)

	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('db_version', $1)
		ON CONFLICT (key) DO UPDATE SET
			value = $1,
			updated_at = CURRENT_TIMESTAMP
	`, versionStr)

	if err != nil {
		return fmt.Errorf("failed to set database version to %s: %w", versionStr, err)
	}

	m.logger.WithField("version", versionStr).Info("Database version updated")
	return nil
}

// RunMigrations executes all necessary migrations based on version comparison
func (m *Manager) RunMigrations(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	m.logger.Info("Starting migration process")

	// Get current versions
	currentDBVersion, err, versionExists := m.GetCurrentDBVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current database version: %w", err)
	}

	currentCodeVersion, err := GetCurrentCodeVersion()
	if err != nil {
		return fmt.Errorf("failed to get current code version: %w", err)
	}

	// If no version exists in database, this is the first run - initialize it
	if !versionExists {
		m.logger.WithField("code_version", fmt.Sprintf("%.0f", currentCodeVersion)).Info("First run detected, initializing database version")
		if err := m.SetCurrentDBVersion(ctx, db, currentCodeVersion); err != nil {
			return fmt.Errorf("failed to initialize database version: %w", err)
		}
		m.logger.Info("Database version initialized successfully")
		return nil
	}

	m.logger.WithField("db_version", fmt.Sprintf("%.0f", currentDBVersion)).
		WithField("code_version", fmt.Sprintf("%.0f", currentCodeVersion)).
		Info("Version comparison")

	// Check if migrations are needed
	if currentDBVersion >= currentCodeVersion {
		m.logger.Info("Database is up to date, no migrations needed")
		return nil
	}

	// Get all registered migrations
	registeredMigrations := GetRegisteredMigrations()

	// Find migrations that need to be executed
	var migrationsToRun []MajorMigrationInterface
	for _, migration := range registeredMigrations {
		migrationVersion := migration.GetMajorVersion()
		if migrationVersion > currentDBVersion && migrationVersion <= currentCodeVersion {
			migrationsToRun = append(migrationsToRun, migration)
		}
	}

	if len(migrationsToRun) == 0 {
		m.logger.Info("No migrations to run")
		return nil
	}

	m.logger.WithField("count", len(migrationsToRun)).Info("Migrations to execute")

	// Track if any migration requires a restart
	requiresRestart := false

	// Execute migrations in order
	for _, migration := range migrationsToRun {
		if err := m.executeMigration(ctx, cfg, db, migration); err != nil {
			return fmt.Errorf("migration failed for version %.0f: %w", migration.GetMajorVersion(), err)
		}

		// Check if this migration requires a restart
		if migration.ShouldRestartServer() {
			requiresRestart = true
		}
	}

	// Update database version after successful migrations
	if err := m.SetCurrentDBVersion(ctx, db, currentCodeVersion); err != nil {
		return fmt.Errorf("failed to update database version after migrations: %w", err)
	}

	m.logger.WithField("version", fmt.Sprintf("%.0f", currentCodeVersion)).Info("Migration process completed successfully")

	// Return restart signal if needed
	if requiresRestart {
		m.logger.Info("Migrations completed - server restart required to reload configuration")
		return ErrRestartRequired
	}

	return nil
}

// executeMigration runs a single migration
func (m *Manager) executeMigration(ctx context.Context, cfg *config.Config, db *sql.DB, migration MajorMigrationInterface) error {
	version := migration.GetMajorVersion()
	m.logger.WithField("version", fmt.Sprintf("%.0f", version)).Info("Executing migration")

	// Start transaction for atomicity
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := migration.Update(ctx, cfg, tx); err != nil {
		return fmt.Errorf("migration update failed: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logger.WithField("version", fmt.Sprintf("%.0f", version)).Info("Migration completed successfully")
	return nil
}
