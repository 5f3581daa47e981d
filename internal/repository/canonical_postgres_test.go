package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/repository/testutil"
)

func canonicalRows(id, fingerprint, bodyHash string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(canonicalColumns).
		AddRow(id, "org-1", fingerprint, bodyHash, nil,
			"Printer on fire", "printer on fire", "alice@customer.test", "Alice",
			[]byte(`[{"email":"support@acme.test"}]`), []byte(`[]`), []byte(`[]`),
			now, "The printer is on fire", []byte(`{}`),
			"The printer is on fire", nil, "<msg-1@customer.test>", nil, "{}",
			"inbound", 1, "allowlist-v1",
			nil, nil,
			nil, nil, nil, nil,
			now, now)
}

func TestCanonicalRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieves a canonical message", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM canonical_messages`).
			WithArgs("canon-1", "org-1").
			WillReturnRows(canonicalRows("canon-1", "fp-1", "bh-1"))

		message, err := repo.GetByID(ctx, "org-1", "canon-1")
		require.NoError(t, err)
		assert.Equal(t, "fp-1", message.FingerprintV1)
		require.Len(t, message.To, 1)
		assert.Equal(t, "support@acme.test", message.To[0].Email)
	})

	t.Run("returns not found", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM canonical_messages`).
			WillReturnRows(sqlmock.NewRows(canonicalColumns))

		_, err := repo.GetByID(ctx, "org-1", "missing")
		var notFound *domain.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestCanonicalRepository_GetByFingerprint(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when no row matches", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .+ FROM canonical_messages`).
			WillReturnRows(sqlmock.NewRows(canonicalColumns))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		defer tx.Rollback()

		message, err := repo.GetByFingerprint(ctx, tx, "org-1", "fp-x", "bh-x")
		require.NoError(t, err)
		assert.Nil(t, message)
	})

	t.Run("finds the exact dedupe identity", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .+ FROM canonical_messages`).
			WithArgs("bh-1", "fp-1", "org-1").
			WillReturnRows(canonicalRows("canon-1", "fp-1", "bh-1"))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		defer tx.Rollback()

		message, err := repo.GetByFingerprint(ctx, tx, "org-1", "fp-1", "bh-1")
		require.NoError(t, err)
		require.NotNil(t, message)
		assert.Equal(t, "canon-1", message.ID)
	})
}

func TestCanonicalRepository_Insert(t *testing.T) {
	ctx := context.Background()

	subject := "Printer on fire"
	message := &domain.CanonicalMessage{
		OrganizationID: "org-1",
		FingerprintV1:  "fp-1",
		BodyHash:       "bh-1",
		Subject:        &subject,
		ParserVersion:  1,
	}

	t.Run("inserts and assigns an id", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO canonical_messages`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)

		require.NoError(t, repo.Insert(ctx, tx, message))
		require.NoError(t, tx.Commit())
		assert.NotEmpty(t, message.ID)
		assert.Equal(t, domain.DirectionInbound, message.Direction)
	})

	t.Run("unique violation surfaces as ErrDuplicateCanonical", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO canonical_messages`).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		defer tx.Rollback()

		err = repo.Insert(ctx, tx, message)
		var duplicate *domain.ErrDuplicateCanonical
		require.ErrorAs(t, err, &duplicate)
		assert.Equal(t, "fp-1", duplicate.Fingerprint)
	})
}

func TestCanonicalRepository_EnsureCollisionGroup(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewCanonicalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO collision_groups`).
		WithArgs(sqlmock.AnyArg(), "org-1", "fp-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("group-1"))
	mock.ExpectExec(`UPDATE canonical_messages SET`).
		WithArgs("group-1", "org-1", "fp-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	groupID, err := repo.EnsureCollisionGroup(context.Background(), tx, "org-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, "group-1", groupID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanonicalRepository_ListCollisionGroups(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewCanonicalRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT g\.id, g\.organization_id`).
		WithArgs("org-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "fingerprint_v1", "created_at", "count"}).
			AddRow("group-1", "org-1", "fp-1", now, 2))

	summaries, err := repo.ListCollisionGroups(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].MessageCount)
}

func TestCanonicalRepository_ListCollisionCandidates(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewCanonicalRepository(db)

	mock.ExpectQuery(`SELECT fingerprint_v1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"fingerprint_v1"}).AddRow("fp-1").AddRow("fp-2"))

	fingerprints, err := repo.ListCollisionCandidates(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-1", "fp-2"}, fingerprints)
}

func TestCanonicalRepository_RFCMessageIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("register is idempotent", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO canonical_message_rfc_ids`).
			WithArgs("org-1", "<msg-1@customer.test>", "canon-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)

		require.NoError(t, repo.RegisterRFCMessageID(ctx, tx, "org-1", "<msg-1@customer.test>", "canon-1"))
		require.NoError(t, tx.Commit())
	})

	t.Run("resolve maps to the oldest canonical id", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT canonical_message_id`).
			WithArgs("org-1", "<msg-1@customer.test>").
			WillReturnRows(sqlmock.NewRows([]string{"canonical_message_id"}).AddRow("canon-1"))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		defer tx.Rollback()

		id, err := repo.ResolveRFCMessageID(ctx, tx, "org-1", "<msg-1@customer.test>")
		require.NoError(t, err)
		assert.Equal(t, "canon-1", id)
	})

	t.Run("resolve returns empty for unknown ids", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT canonical_message_id`).
			WillReturnRows(sqlmock.NewRows([]string{"canonical_message_id"}))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		defer tx.Rollback()

		id, err := repo.ResolveRFCMessageID(ctx, tx, "org-1", "<unknown@nowhere>")
		require.NoError(t, err)
		assert.Empty(t, id)
	})
}

func TestCanonicalRepository_Attachments(t *testing.T) {
	ctx := context.Background()

	t.Run("insert skips content-hash duplicates", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO attachments`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)

		attachment := &domain.Attachment{
			OrganizationID:     "org-1",
			CanonicalMessageID: "canon-1",
			ContentHash:        "hash-1",
			BlobID:             "blob-1",
			SizeBytes:          42,
		}
		require.NoError(t, repo.InsertAttachment(ctx, tx, attachment))
		require.NoError(t, tx.Commit())
		assert.NotEmpty(t, attachment.ID)
	})

	t.Run("list returns attachments in insertion order", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		now := time.Now().UTC()
		columns := []string{"id", "organization_id", "canonical_message_id", "filename",
			"content_type", "size_bytes", "is_inline", "content_id", "content_hash", "blob_id", "created_at"}
		mock.ExpectQuery(`SELECT .+ FROM attachments`).
			WithArgs("canon-1", "org-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("att-1", "org-1", "canon-1", "report.pdf", "application/pdf", 1024, false, nil, "hash-1", "blob-1", now))

		attachments, err := repo.ListAttachments(ctx, "org-1", "canon-1")
		require.NoError(t, err)
		require.Len(t, attachments, 1)
		require.NotNil(t, attachments[0].Filename)
		assert.Equal(t, "report.pdf", *attachments[0].Filename)
	})
}

func TestCanonicalRepository_TicketLink(t *testing.T) {
	ctx := context.Background()

	t.Run("set stamps the stitch verdict", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE canonical_messages SET`).
			WithArgs("canon-1", "org-1", "ticket-1", "references_graph", "high").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)

		err = repo.SetTicketLink(ctx, tx, "org-1", "canon-1", "ticket-1",
			domain.StitchReasonReferencesGraph, domain.ConfidenceHigh)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	})

	t.Run("clear detaches the ticket", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE canonical_messages SET`).
			WithArgs("canon-1", "org-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)

		require.NoError(t, repo.ClearTicketLink(ctx, tx, "org-1", "canon-1"))
		require.NoError(t, tx.Commit())
	})
}

func TestCanonicalRepository_FirstMessageAt(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the earliest date header", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT MIN\(date_header\)`).
			WithArgs("org-1", "ticket-1").
			WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(first))

		got, err := repo.FirstMessageAt(ctx, "org-1", "ticket-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Equal(first))
	})

	t.Run("returns nil when the ticket has no dated messages", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewCanonicalRepository(db)

		mock.ExpectQuery(`SELECT MIN\(date_header\)`).
			WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

		got, err := repo.FirstMessageAt(ctx, "org-1", "ticket-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
