package migrations

import (
	"context"
	"fmt"

	"github.com/ossdesk/ossdesk/config"
)

// V1Migration is the baseline schema release. Installations created before
// the jobs table carried a mailbox_id column are brought up to date here.
type V1Migration struct{}

func (m *V1Migration) GetMajorVersion() float64 {
	return 1.0
}

func (m *V1Migration) ShouldRestartServer() bool {
	return false
}

func (m *V1Migration) Update(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	_, err := db.ExecContext(ctx, `
		ALTER TABLE jobs ADD COLUMN IF NOT EXISTS mailbox_id UUID
	`)
	if err != nil {
		return fmt.Errorf("failed to add mailbox_id to jobs: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		ALTER TABLE mailboxes ADD COLUMN IF NOT EXISTS degraded BOOLEAN NOT NULL DEFAULT FALSE
	`)
	if err != nil {
		return fmt.Errorf("failed to add degraded to mailboxes: %w", err)
	}

	return nil
}

func init() {
	Register(&V1Migration{})
}
