package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/repository/testutil"
)

func organizationRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(organizationColumns).
		AddRow("org-1", "Acme", "{acme.test,acme.example}", "reply.acme.test", now, now)
}

func TestOrganizationRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieves an organization", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewOrganizationRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM organizations`).
			WithArgs("org-1").
			WillReturnRows(organizationRows())

		org, err := repo.GetByID(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", org.Name)
		assert.Equal(t, []string{"acme.test", "acme.example"}, []string(org.MailDomains))
		assert.Equal(t, "reply.acme.test", org.ReplyDomain)
	})

	t.Run("returns not found", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewOrganizationRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM organizations`).
			WillReturnRows(sqlmock.NewRows(organizationColumns))

		_, err := repo.GetByID(ctx, "missing")
		var notFound *domain.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestOrganizationRepository_List(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewOrganizationRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM organizations`).
		WillReturnRows(organizationRows())

	orgs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "org-1", orgs[0].ID)
}
