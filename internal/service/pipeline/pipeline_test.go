package pipeline

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/domain/mocks"
	"github.com/ossdesk/ossdesk/pkg/logger"
	pkgmocks "github.com/ossdesk/ossdesk/pkg/mocks"
)

type pipelineFixture struct {
	db      *sql.DB
	sqlMock sqlmock.Sqlmock

	blobs    *pkgmocks.MockStore
	provider *mocks.MockMailProvider

	orgRepo       *mocks.MockOrganizationRepository
	mailboxRepo   *mocks.MockMailboxRepository
	blobRepo      *mocks.MockBlobRepository
	occRepo       *mocks.MockOccurrenceRepository
	canonicalRepo *mocks.MockCanonicalRepository
	ticketRepo    *mocks.MockTicketRepository
	routingRepo   *mocks.MockRoutingRepository
	jobRepo       *mocks.MockJobRepository

	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, ctrl *gomock.Controller) *pipelineFixture {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &pipelineFixture{
		db:            db,
		sqlMock:       sqlMock,
		blobs:         pkgmocks.NewMockStore(ctrl),
		provider:      mocks.NewMockMailProvider(ctrl),
		orgRepo:       mocks.NewMockOrganizationRepository(ctrl),
		mailboxRepo:   mocks.NewMockMailboxRepository(ctrl),
		blobRepo:      mocks.NewMockBlobRepository(ctrl),
		occRepo:       mocks.NewMockOccurrenceRepository(ctrl),
		canonicalRepo: mocks.NewMockCanonicalRepository(ctrl),
		ticketRepo:    mocks.NewMockTicketRepository(ctrl),
		routingRepo:   mocks.NewMockRoutingRepository(ctrl),
		jobRepo:       mocks.NewMockJobRepository(ctrl),
	}
	f.pipeline = New(Config{
		DB:               db,
		Blobs:            f.blobs,
		Provider:         f.provider,
		OrganizationRepo: f.orgRepo,
		MailboxRepo:      f.mailboxRepo,
		BlobRepo:         f.blobRepo,
		OccurrenceRepo:   f.occRepo,
		CanonicalRepo:    f.canonicalRepo,
		TicketRepo:       f.ticketRepo,
		RoutingRepo:      f.routingRepo,
		JobRepo:          f.jobRepo,
		Logger:           logger.NewLoggerWithLevel("disabled"),
	})
	return f
}

func stageJob(t *testing.T, jobType domain.JobType, organizationID, occurrenceID string, ticketCreated bool) *domain.Job {
	payload, err := json.Marshal(domain.OccurrencePayload{
		OrganizationID: organizationID,
		OccurrenceID:   occurrenceID,
		TicketCreated:  ticketCreated,
	})
	require.NoError(t, err)
	return &domain.Job{
		ID:             "job-1",
		OrganizationID: organizationID,
		Type:           jobType,
		Payload:        payload,
		Attempts:       1,
	}
}

func ptr(s string) *string {
	return &s
}
