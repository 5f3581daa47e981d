package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/domain"
)

func parsedOccurrence() *domain.MessageOccurrence {
	occ := discoveredOccurrence()
	occ.State = domain.OccurrenceStateParsed
	occ.RawBlobID = ptr("blob-1")
	occ.CanonicalMessageID = ptr("can-1")
	return occ
}

func inboundCanonical() *domain.CanonicalMessage {
	return &domain.CanonicalMessage{
		ID:                "can-1",
		OrganizationID:    "org-1",
		Direction:         domain.DirectionInbound,
		Subject:           ptr("Printer on fire"),
		SubjectNormalized: ptr("printer on fire"),
		FromEmail:         ptr("alice@customer.test"),
		FromName:          ptr("Alice Example"),
	}
}

func expectStitchedEvent(t *testing.T, f *pipelineFixture, reason domain.StitchReason, ticketCreated bool) {
	f.ticketRepo.EXPECT().InsertEvent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, event *domain.TicketEvent) error {
			assert.Equal(t, domain.TicketEventStitched, event.Kind)
			var payload map[string]interface{}
			require.NoError(t, json.Unmarshal(event.Payload, &payload))
			assert.Equal(t, string(reason), payload["reason"])
			assert.Equal(t, ticketCreated, payload["ticket_created"])
			return nil
		})
}

func expectRouteEnqueue(t *testing.T, f *pipelineFixture, occurrenceID string, ticketCreated bool) {
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeTicketApplyRouting, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, payload interface{}, opts domain.EnqueueOptions) (string, error) {
			next, ok := payload.(*domain.OccurrencePayload)
			require.True(t, ok)
			assert.Equal(t, ticketCreated, next.TicketCreated)
			assert.Equal(t, "ticket_apply_routing:"+occurrenceID, opts.IdempotencyKey)
			return "job-2", nil
		})
}

// An outbound marker names the ticket outright, even when the message also
// carries threading headers that would stitch elsewhere.
func TestPipeline_HandleStitch_MarkerBeatsThreading(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := parsedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)

	canonical := inboundCanonical()
	canonical.Direction = domain.DirectionOutbound
	canonical.XOSSTicketID = ptr("tk-7")
	canonical.InReplyTo = ptr("<m0@customer.test>")
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-1").Return(canonical, nil)

	// No ResolveRFCMessageID expectation: the marker wins before threading
	// is consulted.
	f.ticketRepo.EXPECT().Exists(gomock.Any(), gomock.Any(), "org-1", "tk-7").Return(true, nil)
	f.canonicalRepo.EXPECT().SetTicketLink(gomock.Any(), gomock.Any(), "org-1", "can-1", "tk-7",
		domain.StitchReasonXOSSMarker, domain.ConfidenceHigh).Return(nil)
	f.occRepo.EXPECT().MarkStitched(gomock.Any(), gomock.Any(), "occ-1", "tk-7").Return(nil)
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-7", gomock.Any()).Return(nil)
	expectStitchedEvent(t, f, domain.StitchReasonXOSSMarker, false)
	expectRouteEnqueue(t, f, "occ-1", false)

	err := f.pipeline.HandleStitch(ctx, stageJob(t, domain.JobTypeOccurrenceStitch, "org-1", "occ-1", false))
	require.NoError(t, err)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPipeline_HandleStitch_ReplyAlias(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := parsedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)

	canonical := inboundCanonical()
	canonical.ReplyTo = domain.AddressList{{Email: "ticket+abc123@acme.test"}}
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-1").Return(canonical, nil)

	f.ticketRepo.EXPECT().GetByCode(gomock.Any(), gomock.Any(), "org-1", "abc123").
		Return(&domain.Ticket{ID: "tk-2", OrganizationID: "org-1"}, nil)
	f.canonicalRepo.EXPECT().SetTicketLink(gomock.Any(), gomock.Any(), "org-1", "can-1", "tk-2",
		domain.StitchReasonReplyToToken, domain.ConfidenceHigh).Return(nil)
	f.occRepo.EXPECT().MarkStitched(gomock.Any(), gomock.Any(), "occ-1", "tk-2").Return(nil)
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-2", gomock.Any()).Return(nil)
	expectStitchedEvent(t, f, domain.StitchReasonReplyToToken, false)
	expectRouteEnqueue(t, f, "occ-1", false)

	err := f.pipeline.HandleStitch(ctx, stageJob(t, domain.JobTypeOccurrenceStitch, "org-1", "occ-1", false))
	require.NoError(t, err)
}

func TestPipeline_HandleStitch_ReferencesGraph(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := parsedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)

	canonical := inboundCanonical()
	canonical.InReplyTo = ptr("<m0@customer.test>")
	canonical.References = []string{"<root@customer.test>"}
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-1").Return(canonical, nil)

	gomock.InOrder(
		f.canonicalRepo.EXPECT().ResolveRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<m0@customer.test>").Return("", nil),
		f.canonicalRepo.EXPECT().ResolveRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<root@customer.test>").Return("can-0", nil),
	)
	referenced := &domain.CanonicalMessage{ID: "can-0", OrganizationID: "org-1", TicketID: ptr("tk-9")}
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-0").Return(referenced, nil)

	f.canonicalRepo.EXPECT().SetTicketLink(gomock.Any(), gomock.Any(), "org-1", "can-1", "tk-9",
		domain.StitchReasonReferencesGraph, domain.ConfidenceMedium).Return(nil)
	f.occRepo.EXPECT().MarkStitched(gomock.Any(), gomock.Any(), "occ-1", "tk-9").Return(nil)
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-9", gomock.Any()).Return(nil)
	expectStitchedEvent(t, f, domain.StitchReasonReferencesGraph, false)
	expectRouteEnqueue(t, f, "occ-1", false)

	err := f.pipeline.HandleStitch(ctx, stageJob(t, domain.JobTypeOccurrenceStitch, "org-1", "occ-1", false))
	require.NoError(t, err)
}

func TestPipeline_HandleStitch_SubjectMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := parsedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)

	canonical := inboundCanonical()
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-1").Return(canonical, nil)

	f.ticketRepo.EXPECT().FindSubjectMatch(gomock.Any(), gomock.Any(), "org-1",
		"printer on fire", "alice@customer.test", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, _, _, _ string, since time.Time) (*domain.Ticket, error) {
			assert.WithinDuration(t, time.Now().UTC().Add(-domain.SubjectMatchWindow), since, time.Minute)
			return &domain.Ticket{ID: "tk-5", OrganizationID: "org-1"}, nil
		})
	f.canonicalRepo.EXPECT().SetTicketLink(gomock.Any(), gomock.Any(), "org-1", "can-1", "tk-5",
		domain.StitchReasonSubjectMatch, domain.ConfidenceLow).Return(nil)
	f.occRepo.EXPECT().MarkStitched(gomock.Any(), gomock.Any(), "occ-1", "tk-5").Return(nil)
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-5", gomock.Any()).Return(nil)
	expectStitchedEvent(t, f, domain.StitchReasonSubjectMatch, false)
	expectRouteEnqueue(t, f, "occ-1", false)

	err := f.pipeline.HandleStitch(ctx, stageJob(t, domain.JobTypeOccurrenceStitch, "org-1", "occ-1", false))
	require.NoError(t, err)
}

// Threading headers that resolve nowhere still disqualify the subject
// fallback. The message opens a new ticket instead of matching by subject.
func TestPipeline_HandleStitch_ThreadingHeadersSkipSubjectMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := parsedOccurrence()
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-1").Return(occ, nil)

	canonical := inboundCanonical()
	canonical.InReplyTo = ptr("<missing@customer.test>")
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-1").Return(canonical, nil)

	f.canonicalRepo.EXPECT().ResolveRFCMessageID(gomock.Any(), gomock.Any(), "org-1", "<missing@customer.test>").Return("", nil)

	// No FindSubjectMatch expectation: a new ticket is the only fallback.
	f.ticketRepo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, ticket *domain.Ticket) error {
			assert.Equal(t, "org-1", ticket.OrganizationID)
			require.NotNil(t, ticket.Subject)
			assert.Equal(t, "Printer on fire", *ticket.Subject)
			require.NotNil(t, ticket.RequesterEmail)
			assert.Equal(t, "alice@customer.test", *ticket.RequesterEmail)
			assert.Equal(t, domain.StitchReasonNewTicket, ticket.StitchReason)
			ticket.ID = "tk-new"
			return nil
		})
	f.canonicalRepo.EXPECT().SetTicketLink(gomock.Any(), gomock.Any(), "org-1", "can-1", "tk-new",
		domain.StitchReasonNewTicket, domain.ConfidenceLow).Return(nil)
	f.occRepo.EXPECT().MarkStitched(gomock.Any(), gomock.Any(), "occ-1", "tk-new").Return(nil)
	// No TouchActivity: creation already stamps activity.
	expectStitchedEvent(t, f, domain.StitchReasonNewTicket, true)
	expectRouteEnqueue(t, f, "occ-1", true)

	err := f.pipeline.HandleStitch(ctx, stageJob(t, domain.JobTypeOccurrenceStitch, "org-1", "occ-1", false))
	require.NoError(t, err)
}

// A sibling occurrence already linked the canonical; this one reuses the
// verdict without re-running the rules or re-linking.
func TestPipeline_HandleStitch_CanonicalAlreadyLinked(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPipelineFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	occ := parsedOccurrence()
	occ.ID = "occ-2"
	f.occRepo.EXPECT().GetForStage(gomock.Any(), gomock.Any(), "org-1", "occ-2").Return(occ, nil)

	canonical := inboundCanonical()
	canonical.TicketID = ptr("tk-1")
	canonical.StitchReason = domain.StitchReasonNewTicket
	canonical.StitchConfidence = domain.ConfidenceLow
	f.canonicalRepo.EXPECT().GetByID(gomock.Any(), "org-1", "can-1").Return(canonical, nil)

	f.occRepo.EXPECT().MarkStitched(gomock.Any(), gomock.Any(), "occ-2", "tk-1").Return(nil)
	f.ticketRepo.EXPECT().TouchActivity(gomock.Any(), gomock.Any(), "org-1", "tk-1", gomock.Any()).Return(nil)
	expectStitchedEvent(t, f, domain.StitchReasonNewTicket, false)
	expectRouteEnqueue(t, f, "occ-2", false)

	err := f.pipeline.HandleStitch(ctx, stageJob(t, domain.JobTypeOccurrenceStitch, "org-1", "occ-2", false))
	require.NoError(t, err)
}

func TestReplyAliasCode(t *testing.T) {
	tests := []struct {
		address string
		code    string
		ok      bool
	}{
		{"ticket+abc123@acme.test", "abc123", true},
		{"  Ticket+ABC123@Acme.Test  ", "abc123", true},
		{"ticket+@acme.test", "", false},
		{"ticket@acme.test", "", false},
		{"support@acme.test", "", false},
		{"ticket+abc123", "", false},
	}
	for _, tc := range tests {
		code, ok := replyAliasCode(tc.address)
		assert.Equal(t, tc.ok, ok, tc.address)
		assert.Equal(t, tc.code, code, tc.address)
	}
}
