package pipeline

import (
	"context"
	"database/sql"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/service/ingest"
)

var inboundRaw = []byte("From: Alice Example <alice@customer.test>\r\n" +
	"To: support@acme.test\r\n" +
	"Subject: Printer on fire\r\n" +
	"Message-Id: <m1@customer.test>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"Delivered-To: support@acme.test\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The printer is on fire again.\r\n")

func fetchedOccurrence() *domain.MessageOccurrence {
	occ := discoveredOccurrence()
	occ.State = domain.OccurrenceStateFetched
	occ.RawBlobID = ptr("blob-1")
	return occ
}

func testOrganization() *domain.Organization {
	return &domain.Organization{
		ID:          "org-1",
		Name:        "Acme",
		MailDomains: []string{"acme.test"},
		ReplyDomain: "acme.test",
	}
}

// expectRawLoad wires the blob catalog and store reads that every parse
// begins with.
func expectRawLoad(f *pipelineFixture, raw []byte) {
	f.blobRepo.EXPECT().GetByID(gomock.Any(), "org-1", "blob-1").
		Return(&domain.BlobRecord{ID: "blob-1", StorageKey: "oss/org-1/hash"}, nil)
	f.blobs.EXPECT().Get(gomock.Any(), "oss/org-1/hash").Return(raw, nil)
}

func TestPipeline_HandleParse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := fetchedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)
	expectRawLoad(f, inboundRaw)

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(testOrganization(), nil)
	f.mailboxRepo.EXPECT().GetByID(gomock.Any(), "org-1", "mb-1").
		Return(&domain.Mailbox{ID: "mb-1", OrganizationID: "org-1", EmailAddress: "journal@acme.test"}, nil)

	parsed, err := ingest.Parse(inboundRaw)
	require.NoError(t, err)
	fingerprint := ingest.FingerprintV1(parsed)
	bodyHash := ingest.BodyHash(parsed.BodyText)

	f.canonicalRepo.EXPECT().GetByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint, bodyHash).Return(nil, nil)

	var canonicalID string
	f.canonicalRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, message *domain.CanonicalMessage) error {
			canonicalID = message.ID
			assert.NotEmpty(t, message.ID)
			assert.Equal(t, fingerprint, message.FingerprintV1)
			assert.Equal(t, bodyHash, message.BodyHash)
			assert.Equal(t, domain.DirectionInbound, message.Direction)
			require.NotNil(t, message.RFCMessageID)
			assert.Equal(t, "<m1@customer.test>", *message.RFCMessageID)
			require.NotNil(t, message.Subject)
			assert.Equal(t, "Printer on fire", *message.Subject)
			require.NotNil(t, message.FromEmail)
			assert.Equal(t, "alice@customer.test", *message.FromEmail)
			assert.Equal(t, ingest.ParserVersion, message.ParserVersion)
			return nil
		})
	f.canonicalRepo.EXPECT().ListByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint).
		Return([]*domain.CanonicalMessage{{ID: "new", BodyHash: bodyHash}}, nil)
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<m1@customer.test>", gomock.Any()).Return(nil)

	f.occRepo.EXPECT().MarkParsed(gomock.Any(), gomock.Any(), "occ-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, _ string, id string, recipient *domain.ResolvedRecipient) error {
			assert.Equal(t, canonicalID, id)
			require.NotNil(t, recipient)
			assert.Equal(t, "support@acme.test", recipient.Recipient)
			assert.Equal(t, domain.RecipientSourceDeliveredTo, recipient.Source)
			assert.Equal(t, domain.ConfidenceMedium, recipient.Confidence)
			return nil
		})

	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceStitch, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, _ interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "occurrence_stitch:occ-1", opts.IdempotencyKey)
			return "job-2", nil
		})

	err = f.pipeline.HandleParse(ctx, stageJob(t, domain.JobTypeOccurrenceParse, "org-1", "occ-1", false))
	require.NoError(t, err)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

// A second delivery of the same message hits the fingerprint index and
// attaches to the existing canonical without inserting.
func TestPipeline_HandleParse_DuplicateDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := fetchedOccurrence()
	occ.ID = "occ-2"
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-2").Return(occ, nil)
	expectRawLoad(f, inboundRaw)

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(testOrganization(), nil)
	f.mailboxRepo.EXPECT().GetByID(gomock.Any(), "org-1", "mb-1").
		Return(&domain.Mailbox{ID: "mb-1", OrganizationID: "org-1", EmailAddress: "journal@acme.test"}, nil)

	parsed, err := ingest.Parse(inboundRaw)
	require.NoError(t, err)
	fingerprint := ingest.FingerprintV1(parsed)
	bodyHash := ingest.BodyHash(parsed.BodyText)

	existing := &domain.CanonicalMessage{
		ID:             "can-1",
		OrganizationID: "org-1",
		FingerprintV1:  fingerprint,
		BodyHash:       bodyHash,
		ParserVersion:  ingest.ParserVersion,
	}
	f.canonicalRepo.EXPECT().GetByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint, bodyHash).Return(existing, nil)
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<m1@customer.test>", "can-1").Return(nil)

	f.occRepo.EXPECT().MarkParsed(gomock.Any(), gomock.Any(), "occ-2", "can-1", gomock.Any()).Return(nil)

	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceStitch, "org-1", gomock.Any(), gomock.Any()).
		Return("job-2", nil)

	err = f.pipeline.HandleParse(ctx, stageJob(t, domain.JobTypeOccurrenceParse, "org-1", "occ-2", false))
	require.NoError(t, err)
}

// Same fingerprint under a newer parser refreshes the stored content in
// place, keeping the canonical id stable.
func TestPipeline_HandleParse_ParserVersionRefresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := fetchedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)
	expectRawLoad(f, inboundRaw)

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(testOrganization(), nil)
	f.mailboxRepo.EXPECT().GetByID(gomock.Any(), "org-1", "mb-1").
		Return(&domain.Mailbox{ID: "mb-1", OrganizationID: "org-1", EmailAddress: "journal@acme.test"}, nil)

	parsed, err := ingest.Parse(inboundRaw)
	require.NoError(t, err)
	fingerprint := ingest.FingerprintV1(parsed)
	bodyHash := ingest.BodyHash(parsed.BodyText)

	stale := &domain.CanonicalMessage{
		ID:            "can-1",
		FingerprintV1: fingerprint,
		BodyHash:      bodyHash,
		ParserVersion: ingest.ParserVersion - 1,
	}
	f.canonicalRepo.EXPECT().GetByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint, bodyHash).Return(stale, nil)
	f.canonicalRepo.EXPECT().UpdateParsedContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, refreshed *domain.CanonicalMessage) error {
			assert.Equal(t, "can-1", refreshed.ID)
			assert.Equal(t, ingest.ParserVersion, refreshed.ParserVersion)
			return nil
		})
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<m1@customer.test>", "can-1").Return(nil)

	f.occRepo.EXPECT().MarkParsed(gomock.Any(), gomock.Any(), "occ-1", "can-1", gomock.Any()).Return(nil)
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceStitch, "org-1", gomock.Any(), gomock.Any()).
		Return("job-2", nil)

	err = f.pipeline.HandleParse(ctx, stageJob(t, domain.JobTypeOccurrenceParse, "org-1", "occ-1", false))
	require.NoError(t, err)
}

// A fingerprint shared by two different bodies gets a collision group so
// operators can audit the near-duplicates.
func TestPipeline_HandleParse_FingerprintCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := fetchedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)
	expectRawLoad(f, inboundRaw)

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(testOrganization(), nil)
	f.mailboxRepo.EXPECT().GetByID(gomock.Any(), "org-1", "mb-1").
		Return(&domain.Mailbox{ID: "mb-1", OrganizationID: "org-1", EmailAddress: "journal@acme.test"}, nil)

	parsed, err := ingest.Parse(inboundRaw)
	require.NoError(t, err)
	fingerprint := ingest.FingerprintV1(parsed)
	bodyHash := ingest.BodyHash(parsed.BodyText)

	f.canonicalRepo.EXPECT().GetByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint, bodyHash).Return(nil, nil)
	f.canonicalRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.canonicalRepo.EXPECT().ListByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint).
		Return([]*domain.CanonicalMessage{
			{ID: "can-1", BodyHash: bodyHash},
			{ID: "can-0", BodyHash: "some-other-body"},
		}, nil)
	f.canonicalRepo.EXPECT().EnsureCollisionGroup(gomock.Any(), gomock.Any(), "org-1", fingerprint).Return("grp-1", nil)
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<m1@customer.test>", gomock.Any()).Return(nil)

	f.occRepo.EXPECT().MarkParsed(gomock.Any(), gomock.Any(), "occ-1", gomock.Any(), gomock.Any()).Return(nil)
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceStitch, "org-1", gomock.Any(), gomock.Any()).
		Return("job-2", nil)

	err = f.pipeline.HandleParse(ctx, stageJob(t, domain.JobTypeOccurrenceParse, "org-1", "occ-1", false))
	require.NoError(t, err)
}

// Losing the canonical insert race re-reads the winner instead of failing.
func TestPipeline_HandleParse_InsertRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := fetchedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)
	expectRawLoad(f, inboundRaw)

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(testOrganization(), nil)
	f.mailboxRepo.EXPECT().GetByID(gomock.Any(), "org-1", "mb-1").
		Return(&domain.Mailbox{ID: "mb-1", OrganizationID: "org-1", EmailAddress: "journal@acme.test"}, nil)

	parsed, err := ingest.Parse(inboundRaw)
	require.NoError(t, err)
	fingerprint := ingest.FingerprintV1(parsed)
	bodyHash := ingest.BodyHash(parsed.BodyText)

	winner := &domain.CanonicalMessage{ID: "can-winner", ParserVersion: ingest.ParserVersion}
	gomock.InOrder(
		f.canonicalRepo.EXPECT().GetByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint, bodyHash).Return(nil, nil),
		f.canonicalRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&domain.ErrDuplicateCanonical{Fingerprint: fingerprint}),
		f.canonicalRepo.EXPECT().GetByFingerprint(gomock.Any(), gomock.Any(), "org-1", fingerprint, bodyHash).Return(winner, nil),
	)
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<m1@customer.test>", "can-winner").Return(nil)

	f.occRepo.EXPECT().MarkParsed(gomock.Any(), gomock.Any(), "occ-1", "can-winner", gomock.Any()).Return(nil)
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceStitch, "org-1", gomock.Any(), gomock.Any()).
		Return("job-2", nil)

	err = f.pipeline.HandleParse(ctx, stageJob(t, domain.JobTypeOccurrenceParse, "org-1", "occ-1", false))
	require.NoError(t, err)
}

func TestPipeline_HandleParse_MalformedMessageIsTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	occ := fetchedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)
	expectRawLoad(f, []byte("this is not an rfc822 message"))

	f.occRepo.EXPECT().MarkFailed(gomock.Any(), "occ-1", domain.OccurrenceStateParsed, gomock.Any()).Return(nil)

	err := f.pipeline.HandleParse(ctx, stageJob(t, domain.JobTypeOccurrenceParse, "org-1", "occ-1", false))
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}
