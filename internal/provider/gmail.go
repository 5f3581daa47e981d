// Package provider implements the mail provider contract consumed by the
// sync controller and the fetch stage.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/pkg/crypto"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

const (
	gmailUser    = "me"
	listPageSize = 500
)

// GmailProvider implements domain.MailProvider against the Gmail API.
// Credentials are decrypted per call; freshly minted access tokens are
// written back so restarts reuse them until expiry.
type GmailProvider struct {
	cfg            *config.Config
	credentialRepo domain.CredentialRepository
	logger         logger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewGmailProvider creates a Gmail-backed mail provider
func NewGmailProvider(cfg *config.Config, credentialRepo domain.CredentialRepository, log logger.Logger) *GmailProvider {
	return &GmailProvider{
		cfg:            cfg,
		credentialRepo: credentialRepo,
		logger:         log,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breaker returns the per-mailbox circuit breaker, creating it on first use.
// Invalid cursors are API answers, not outages, and never trip it.
func (p *GmailProvider) breaker(mailboxID string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[mailboxID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gmail:" + mailboxID,
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrInvalidCursor)
		},
	})
	p.breakers[mailboxID] = cb
	return cb
}

// ListMessages pages the full mailbox for backfill
func (p *GmailProvider) ListMessages(ctx context.Context, mailbox *domain.Mailbox, pageToken string) ([]domain.ProviderMessageMeta, string, error) {
	svc, err := p.serviceFor(ctx, mailbox)
	if err != nil {
		return nil, "", err
	}

	result, err := p.breaker(mailbox.ID).Execute(func() (interface{}, error) {
		call := svc.Users.Messages.List(gmailUser).MaxResults(listPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, classifyGmailError(err)
		}

		metas := make([]domain.ProviderMessageMeta, 0, len(resp.Messages))
		for _, ref := range resp.Messages {
			msg, err := svc.Users.Messages.Get(gmailUser, ref.Id).
				Format("minimal").
				Context(ctx).
				Do()
			if err != nil {
				return nil, classifyGmailError(err)
			}
			metas = append(metas, messageMeta(msg))
		}
		return listPage{metas: metas, next: resp.NextPageToken}, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}

	page := result.(listPage)
	return page.metas, page.next, nil
}

type listPage struct {
	metas []domain.ProviderMessageMeta
	next  string
}

// HistoryDelta returns the provider deltas recorded after cursor. A 404 from
// the history list means the cursor aged out and maps to ErrInvalidCursor.
func (p *GmailProvider) HistoryDelta(ctx context.Context, mailbox *domain.Mailbox, cursor string) ([]domain.HistoryEvent, string, error) {
	startID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("cursor %q: %w", cursor, domain.ErrInvalidCursor)
	}

	svc, err := p.serviceFor(ctx, mailbox)
	if err != nil {
		return nil, "", err
	}

	result, err := p.breaker(mailbox.ID).Execute(func() (interface{}, error) {
		var events []domain.HistoryEvent
		newCursor := cursor
		pageToken := ""

		for {
			call := svc.Users.History.List(gmailUser).StartHistoryId(startID)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			resp, err := call.Context(ctx).Do()
			if err != nil {
				var apiErr *googleapi.Error
				if errors.As(err, &apiErr) && apiErr.Code == 404 {
					return nil, fmt.Errorf("history list: %w", domain.ErrInvalidCursor)
				}
				return nil, classifyGmailError(err)
			}

			for _, h := range resp.History {
				for _, added := range h.MessagesAdded {
					events = append(events, domain.HistoryEvent{
						Kind:    domain.HistoryEventMessageAdded,
						Message: messageMeta(added.Message),
					})
				}
				for _, deleted := range h.MessagesDeleted {
					events = append(events, domain.HistoryEvent{
						Kind:    domain.HistoryEventMessageDeleted,
						Message: messageMeta(deleted.Message),
					})
				}
			}
			if resp.HistoryId > 0 {
				newCursor = strconv.FormatUint(resp.HistoryId, 10)
			}
			if resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
		return historyPage{events: events, cursor: newCursor}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("failed to list history: %w", err)
	}

	page := result.(historyPage)
	return page.events, page.cursor, nil
}

type historyPage struct {
	events []domain.HistoryEvent
	cursor string
}

// FetchRaw retrieves the full RFC822 bytes of one message
func (p *GmailProvider) FetchRaw(ctx context.Context, mailbox *domain.Mailbox, providerMessageID string) ([]byte, error) {
	svc, err := p.serviceFor(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	result, err := p.breaker(mailbox.ID).Execute(func() (interface{}, error) {
		msg, err := svc.Users.Messages.Get(gmailUser, providerMessageID).
			Format("raw").
			Context(ctx).
			Do()
		if err != nil {
			return nil, classifyGmailError(err)
		}
		raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(msg.Raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode raw payload: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", providerMessageID, err)
	}
	return result.([]byte), nil
}

// Profile checks connectivity and returns the authenticated address
func (p *GmailProvider) Profile(ctx context.Context, mailbox *domain.Mailbox) (*domain.ProviderProfile, error) {
	cred, err := p.credential(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	svc, err := p.serviceFor(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	result, err := p.breaker(mailbox.ID).Execute(func() (interface{}, error) {
		profile, err := svc.Users.GetProfile(gmailUser).Context(ctx).Do()
		if err != nil {
			return nil, classifyGmailError(err)
		}
		return &domain.ProviderProfile{
			Email:  profile.EmailAddress,
			Scopes: cred.Scopes,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return result.(*domain.ProviderProfile), nil
}

func (p *GmailProvider) credential(ctx context.Context, mailbox *domain.Mailbox) (*domain.OAuthCredential, error) {
	if mailbox.CredentialID == nil {
		return nil, fmt.Errorf("mailbox %s has no credential: %w", mailbox.ID, domain.ErrProviderAuth)
	}
	cred, err := p.credentialRepo.GetByID(ctx, mailbox.OrganizationID, *mailbox.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return cred, nil
}

func (p *GmailProvider) serviceFor(ctx context.Context, mailbox *domain.Mailbox) (*gmail.Service, error) {
	cred, err := p.credential(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	refreshToken, err := crypto.DecryptWithAAD(cred.EncryptedRefreshToken, p.cfg.Security.SecretKey, cred.EncryptionAAD())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     p.cfg.Google.ClientID,
		ClientSecret: p.cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       cred.Scopes,
	}

	source := &persistingTokenSource{
		ctx:            ctx,
		provider:       p,
		credential:     cred,
		refreshSource:  oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: string(refreshToken)}),
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(source.cached(), source)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

// persistingTokenSource mints access tokens through the refresh flow and
// writes each new token back to the credential row, encrypted.
type persistingTokenSource struct {
	ctx           context.Context
	provider      *GmailProvider
	credential    *domain.OAuthCredential
	refreshSource oauth2.TokenSource
}

// cached returns the stored access token when it is still usable, or nil.
func (s *persistingTokenSource) cached() *oauth2.Token {
	cred := s.credential
	if cred.EncryptedAccessToken == nil || cred.AccessTokenExpiresAt == nil {
		return nil
	}
	if time.Until(*cred.AccessTokenExpiresAt) < time.Minute {
		return nil
	}
	accessToken, err := crypto.DecryptWithAAD(*cred.EncryptedAccessToken, s.provider.cfg.Security.SecretKey, cred.EncryptionAAD())
	if err != nil {
		s.provider.logger.WithField("credential_id", cred.ID).Warn("stored access token is unreadable, refreshing")
		return nil
	}
	return &oauth2.Token{
		AccessToken: string(accessToken),
		Expiry:      *cred.AccessTokenExpiresAt,
	}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.refreshSource.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", domain.ErrProviderAuth)
	}

	encrypted, err := crypto.EncryptWithAAD([]byte(token.AccessToken), s.provider.cfg.Security.SecretKey, s.credential.EncryptionAAD())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if err := s.provider.credentialRepo.UpdateAccessToken(s.ctx, s.credential.OrganizationID, s.credential.ID, encrypted, token.Expiry); err != nil {
		// The token itself is good; losing the cache write only costs a
		// refresh on the next boot.
		s.provider.logger.WithField("credential_id", s.credential.ID).Warn("failed to cache access token")
	}
	return token, nil
}

func messageMeta(msg *gmail.Message) domain.ProviderMessageMeta {
	if msg == nil {
		return domain.ProviderMessageMeta{}
	}
	meta := domain.ProviderMessageMeta{
		ProviderMessageID: msg.Id,
		ThreadID:          msg.ThreadId,
		HistoryID:         msg.HistoryId,
		LabelIDs:          msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		t := time.UnixMilli(msg.InternalDate).UTC()
		meta.InternalDate = &t
	}
	return meta
}

// classifyGmailError maps authentication and scope failures to the typed
// sentinel; everything else stays transient.
func classifyGmailError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return fmt.Errorf("gmail: %v: %w", apiErr.Message, domain.ErrProviderAuth)
	}
	return err
}
