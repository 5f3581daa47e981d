package provider

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// FakeProvider is a deterministic in-memory mail provider for tests and
// development. Messages are appended with Deliver; every append advances the
// history cursor by one.
type FakeProvider struct {
	mu sync.Mutex

	messages map[string][]fakeMessage        // mailboxID -> messages in delivery order
	raw      map[string]map[string][]byte    // mailboxID -> providerMessageID -> rfc822
	history  map[string][]fakeHistoryEntry   // mailboxID -> delta log
	cursor   map[string]uint64               // mailboxID -> latest history id
	profiles map[string]domain.ProviderProfile

	// Fail, when set, is returned by every call until cleared.
	Fail error
	// PageSize bounds ListMessages pages; zero means everything in one page.
	PageSize int
}

type fakeMessage struct {
	meta domain.ProviderMessageMeta
}

type fakeHistoryEntry struct {
	id    uint64
	event domain.HistoryEvent
}

// NewFakeProvider creates an empty fake provider
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		messages: make(map[string][]fakeMessage),
		raw:      make(map[string]map[string][]byte),
		history:  make(map[string][]fakeHistoryEntry),
		cursor:   make(map[string]uint64),
		profiles: make(map[string]domain.ProviderProfile),
	}
}

// Deliver appends a message to the mailbox and records a message_added delta.
// Returns the history id assigned to the delivery.
func (p *FakeProvider) Deliver(mailboxID, providerMessageID, threadID string, raw []byte) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cursor[mailboxID]++
	historyID := p.cursor[mailboxID]

	meta := domain.ProviderMessageMeta{
		ProviderMessageID: providerMessageID,
		ThreadID:          threadID,
		HistoryID:         historyID,
		LabelIDs:          []string{"INBOX"},
	}
	p.messages[mailboxID] = append(p.messages[mailboxID], fakeMessage{meta: meta})
	if p.raw[mailboxID] == nil {
		p.raw[mailboxID] = make(map[string][]byte)
	}
	p.raw[mailboxID][providerMessageID] = raw
	p.history[mailboxID] = append(p.history[mailboxID], fakeHistoryEntry{
		id:    historyID,
		event: domain.HistoryEvent{Kind: domain.HistoryEventMessageAdded, Message: meta},
	})
	return historyID
}

// Remove records a message_deleted delta; the raw bytes stay fetchable, as a
// provider may serve deleted mail for a while.
func (p *FakeProvider) Remove(mailboxID, providerMessageID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cursor[mailboxID]++
	historyID := p.cursor[mailboxID]
	p.history[mailboxID] = append(p.history[mailboxID], fakeHistoryEntry{
		id: historyID,
		event: domain.HistoryEvent{
			Kind:    domain.HistoryEventMessageDeleted,
			Message: domain.ProviderMessageMeta{ProviderMessageID: providerMessageID, HistoryID: historyID},
		},
	})
	return historyID
}

// ExpireHistory drops the delta log so any stored cursor becomes invalid
func (p *FakeProvider) ExpireHistory(mailboxID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[mailboxID] = nil
}

// SetProfile sets the Profile answer for a mailbox
func (p *FakeProvider) SetProfile(mailboxID string, profile domain.ProviderProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[mailboxID] = profile
}

// Cursor returns the current history cursor of a mailbox
func (p *FakeProvider) Cursor(mailboxID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strconv.FormatUint(p.cursor[mailboxID], 10)
}

// ListMessages implements domain.MailProvider
func (p *FakeProvider) ListMessages(ctx context.Context, mailbox *domain.Mailbox, pageToken string) ([]domain.ProviderMessageMeta, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Fail != nil {
		return nil, "", p.Fail
	}

	all := p.messages[mailbox.ID]
	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 || n > len(all) {
			return nil, "", fmt.Errorf("unknown page token %q", pageToken)
		}
		start = n
	}

	end := len(all)
	next := ""
	if p.PageSize > 0 && start+p.PageSize < len(all) {
		end = start + p.PageSize
		next = strconv.Itoa(end)
	}

	metas := make([]domain.ProviderMessageMeta, 0, end-start)
	for _, m := range all[start:end] {
		metas = append(metas, m.meta)
	}
	return metas, next, nil
}

// HistoryDelta implements domain.MailProvider
func (p *FakeProvider) HistoryDelta(ctx context.Context, mailbox *domain.Mailbox, cursor string) ([]domain.HistoryEvent, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Fail != nil {
		return nil, "", p.Fail
	}

	since, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("cursor %q: %w", cursor, domain.ErrInvalidCursor)
	}

	entries := p.history[mailbox.ID]
	// A cursor older than the retained log means the history expired.
	if len(entries) == 0 {
		if since < p.cursor[mailbox.ID] {
			return nil, "", fmt.Errorf("cursor %s: %w", cursor, domain.ErrInvalidCursor)
		}
	} else if since+1 < entries[0].id {
		return nil, "", fmt.Errorf("cursor %s: %w", cursor, domain.ErrInvalidCursor)
	}
	if since > p.cursor[mailbox.ID] {
		return nil, "", fmt.Errorf("cursor %s: %w", cursor, domain.ErrInvalidCursor)
	}

	var events []domain.HistoryEvent
	for _, entry := range entries {
		if entry.id > since {
			events = append(events, entry.event)
		}
	}
	return events, strconv.FormatUint(p.cursor[mailbox.ID], 10), nil
}

// FetchRaw implements domain.MailProvider
func (p *FakeProvider) FetchRaw(ctx context.Context, mailbox *domain.Mailbox, providerMessageID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Fail != nil {
		return nil, p.Fail
	}
	raw, ok := p.raw[mailbox.ID][providerMessageID]
	if !ok {
		return nil, fmt.Errorf("message %s not found", providerMessageID)
	}
	return raw, nil
}

// Profile implements domain.MailProvider
func (p *FakeProvider) Profile(ctx context.Context, mailbox *domain.Mailbox) (*domain.ProviderProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Fail != nil {
		return nil, p.Fail
	}
	if profile, ok := p.profiles[mailbox.ID]; ok {
		return &profile, nil
	}
	return &domain.ProviderProfile{Email: mailbox.EmailAddress}, nil
}
