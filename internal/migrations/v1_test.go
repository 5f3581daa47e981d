package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/config"
)

func TestV1Migration_Metadata(t *testing.T) {
	m := &V1Migration{}
	assert.Equal(t, 1.0, m.GetMajorVersion())
	assert.False(t, m.ShouldRestartServer())
}

func TestV1Migration_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("ALTER TABLE jobs ADD COLUMN IF NOT EXISTS mailbox_id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE mailboxes ADD COLUMN IF NOT EXISTS degraded").
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := &V1Migration{}
	err = m.Update(context.Background(), &config.Config{}, db)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestV1Migration_UpdateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("ALTER TABLE jobs").WillReturnError(errors.New("boom"))

	m := &V1Migration{}
	err = m.Update(context.Background(), &config.Config{}, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add mailbox_id")
}
