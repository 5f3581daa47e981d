package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/domain/mocks"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

type outboundServiceFixture struct {
	db            *sql.DB
	sqlMock       sqlmock.Sqlmock
	orgRepo       *mocks.MockOrganizationRepository
	mailboxRepo   *mocks.MockMailboxRepository
	ticketRepo    *mocks.MockTicketRepository
	canonicalRepo *mocks.MockCanonicalRepository
	jobRepo       *mocks.MockJobRepository
	service       *OutboundService
}

func newOutboundServiceFixture(t *testing.T, ctrl *gomock.Controller) *outboundServiceFixture {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &outboundServiceFixture{
		db:            db,
		sqlMock:       sqlMock,
		orgRepo:       mocks.NewMockOrganizationRepository(ctrl),
		mailboxRepo:   mocks.NewMockMailboxRepository(ctrl),
		ticketRepo:    mocks.NewMockTicketRepository(ctrl),
		canonicalRepo: mocks.NewMockCanonicalRepository(ctrl),
		jobRepo:       mocks.NewMockJobRepository(ctrl),
	}
	smtp := &config.SMTPConfig{FromEmail: "helpdesk@acme.test", FromName: "Acme Support"}
	f.service = NewOutboundService(db, smtp, f.orgRepo, f.mailboxRepo, f.ticketRepo, f.canonicalRepo, f.jobRepo, logger.NewLoggerWithLevel("disabled"))
	return f
}

func replyOrganization() *domain.Organization {
	return &domain.Organization{
		ID:          "org-1",
		Name:        "Acme",
		MailDomains: []string{"acme.test"},
		ReplyDomain: "reply.acme.test",
	}
}

func repliedTicket() *domain.Ticket {
	subject := "Printer on fire"
	return &domain.Ticket{
		ID:             "tk-1",
		OrganizationID: "org-1",
		Code:           "abc123",
		Status:         domain.TicketStatusOpen,
		Subject:        &subject,
		RequesterEmail: strPtr("alice@customer.test"),
		RequesterName:  strPtr("Alice Example"),
	}
}

func TestOutboundService_QueueTicketReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newOutboundServiceFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(replyOrganization(), nil)
	f.mailboxRepo.EXPECT().ListByOrganization(gomock.Any(), "org-1").Return([]*domain.Mailbox{
		{ID: "mb-j", Purpose: domain.MailboxPurposeJournal, EmailAddress: "journal@acme.test", Enabled: true},
		{ID: "mb-o", Purpose: domain.MailboxPurposeOutbound, EmailAddress: "support@acme.test", Enabled: true},
	}, nil)
	f.ticketRepo.EXPECT().GetForUpdate(gomock.Any(), gomock.Any(), "org-1", "tk-1").Return(repliedTicket(), nil)

	var inserted *domain.CanonicalMessage
	f.canonicalRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, message *domain.CanonicalMessage) error {
			inserted = message
			assert.Equal(t, domain.DirectionOutbound, message.Direction)
			require.NotNil(t, message.Subject)
			assert.Equal(t, "Re: Printer on fire", *message.Subject)
			require.NotNil(t, message.FromEmail)
			assert.Equal(t, "support@acme.test", *message.FromEmail)
			require.NotNil(t, message.XOSSTicketID)
			assert.Equal(t, "tk-1", *message.XOSSTicketID)
			require.NotNil(t, message.XOSSMessageID)
			require.NotNil(t, message.TicketID)
			assert.Equal(t, "tk-1", *message.TicketID)
			assert.Equal(t, domain.StitchReasonXOSSMarker, message.StitchReason)
			require.Len(t, message.ReplyTo, 1)
			assert.Equal(t, "ticket+abc123@reply.acme.test", message.ReplyTo[0].Email)
			require.Len(t, message.To, 1)
			assert.Equal(t, "alice@customer.test", message.To[0].Email)
			return nil
		})
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", gomock.Any(), gomock.Any()).Return(nil)

	f.ticketRepo.EXPECT().InsertEvent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, event *domain.TicketEvent) error {
			assert.Equal(t, domain.TicketEventOutboundQueued, event.Kind)
			require.NotNil(t, event.ActorUserID)
			assert.Equal(t, "user-1", *event.ActorUserID)
			return nil
		})
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-1", gomock.Any()).Return(nil)

	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOutboundSend, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, _ interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "outbound_send:"+inserted.ID, opts.IdempotencyKey)
			return "job-1", nil
		})

	message, err := f.service.QueueTicketReply(ctx, &domain.QueueTicketReplyRequest{
		OrganizationID: "org-1",
		TicketID:       "tk-1",
		AuthorUserID:   strPtr("user-1"),
		BodyText:       "We dispatched an engineer.",
	})
	require.NoError(t, err)
	require.NotNil(t, message)
	assert.Equal(t, inserted.ID, message.ID)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

// Without an enabled outbound mailbox the configured SMTP identity sends.
func TestOutboundService_QueueTicketReply_SMTPFallbackSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newOutboundServiceFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	f.orgRepo.EXPECT().GetByID(gomock.Any(), "org-1").Return(replyOrganization(), nil)
	f.mailboxRepo.EXPECT().ListByOrganization(gomock.Any(), "org-1").Return([]*domain.Mailbox{
		{ID: "mb-o", Purpose: domain.MailboxPurposeOutbound, EmailAddress: "support@acme.test", Enabled: false},
	}, nil)
	f.ticketRepo.EXPECT().GetForUpdate(gomock.Any(), gomock.Any(), "org-1", "tk-1").Return(repliedTicket(), nil)

	f.canonicalRepo.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, message *domain.CanonicalMessage) error {
			require.NotNil(t, message.FromEmail)
			assert.Equal(t, "helpdesk@acme.test", *message.FromEmail)
			require.NotNil(t, message.FromName)
			assert.Equal(t, "Acme Support", *message.FromName)
			return nil
		})
	f.canonicalRepo.EXPECT().RegisterRFCMessageID(gomock.Any(), gomock.Any(), "org-1", gomock.Any(), gomock.Any()).Return(nil)
	f.ticketRepo.EXPECT().InsertEvent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-1", gomock.Any()).Return(nil)
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOutboundSend, "org-1", gomock.Any(), gomock.Any()).Return("job-1", nil)

	_, err := f.service.QueueTicketReply(ctx, &domain.QueueTicketReplyRequest{
		OrganizationID: "org-1",
		TicketID:       "tk-1",
		BodyText:       "On it.",
	})
	require.NoError(t, err)
}

func TestOutboundService_QueueTicketReply_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newOutboundServiceFixture(t, ctrl)
	ctx := context.Background()

	_, err := f.service.QueueTicketReply(ctx, &domain.QueueTicketReplyRequest{
		OrganizationID: "org-1",
		TicketID:       "tk-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reply body is required")
}

func TestOutboundService_BuildRFC822(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newOutboundServiceFixture(t, ctrl)

	message := &domain.CanonicalMessage{
		ID:             "can-1",
		OrganizationID: "org-1",
		Direction:      domain.DirectionOutbound,
		RFCMessageID:   strPtr("<oss-1@outbound.reply.acme.test>"),
		Subject:        strPtr("Re: Printer on fire"),
		FromEmail:      strPtr("support@acme.test"),
		FromName:       strPtr("Acme Support"),
		To:             domain.AddressList{{Email: "alice@customer.test", Name: "Alice Example"}},
		ReplyTo:        domain.AddressList{{Email: "ticket+abc123@reply.acme.test"}},
		BodyText:       strPtr("We dispatched an engineer."),
		XOSSTicketID:   strPtr("tk-1"),
		XOSSMessageID:  strPtr("msg-uuid-1"),
	}

	raw, err := f.service.BuildRFC822(message)
	require.NoError(t, err)
	wire := string(raw)

	assert.Contains(t, wire, "Subject: Re: Printer on fire")
	assert.Contains(t, wire, "support@acme.test")
	assert.Contains(t, wire, "alice@customer.test")
	assert.Contains(t, wire, "ticket+abc123@reply.acme.test")
	assert.Contains(t, wire, "X-OSS-Ticket-ID: tk-1")
	assert.Contains(t, wire, "X-OSS-Message-ID: msg-uuid-1")
	assert.Contains(t, wire, "oss-1@outbound.reply.acme.test")
	assert.Contains(t, wire, "We dispatched an engineer.")
	assert.True(t, strings.Contains(wire, "text/plain"))
}

func TestOutboundService_BuildRFC822_InvalidFrom(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newOutboundServiceFixture(t, ctrl)

	_, err := f.service.BuildRFC822(&domain.CanonicalMessage{
		To: domain.AddressList{{Email: "alice@customer.test"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from address")
}
