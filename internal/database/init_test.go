package database

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/database/schema"
)

func TestInitializeDatabase(t *testing.T) {

	t.Run("creates tables successfully", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		// Setup expectations for table creation
		for range schema.TableDefinitions {
			mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 0))
		}

		err = InitializeDatabase(db)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns error when table creation fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("").WillReturnError(errors.New("create failed"))

		err = InitializeDatabase(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create table")
	})
}

func TestCleanDatabase(t *testing.T) {
	t.Run("drops tables in reverse order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		for i := len(schema.TableNames) - 1; i >= 0; i-- {
			mock.ExpectExec("DROP TABLE IF EXISTS " + schema.TableNames[i]).
				WillReturnResult(sqlmock.NewResult(0, 0))
		}

		err = CleanDatabase(db)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns error when drop fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("").WillReturnError(errors.New("drop failed"))

		err = CleanDatabase(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to drop table")
	})
}
