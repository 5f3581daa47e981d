// Package app wires the worker process: database, blob store, mail
// provider, repositories, services and the job host.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/database"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/migrations"
	"github.com/ossdesk/ossdesk/internal/provider"
	"github.com/ossdesk/ossdesk/internal/repository"
	"github.com/ossdesk/ossdesk/internal/service"
	"github.com/ossdesk/ossdesk/internal/service/pipeline"
	"github.com/ossdesk/ossdesk/internal/service/worker"
	"github.com/ossdesk/ossdesk/pkg/blob"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

// App owns every component of the worker process and their startup order.
type App struct {
	config *config.Config
	logger logger.Logger

	db       *sql.DB
	blobs    blob.Store
	provider domain.MailProvider

	organizationRepo domain.OrganizationRepository
	credentialRepo   domain.CredentialRepository
	mailboxRepo      domain.MailboxRepository
	blobRepo         domain.BlobRepository
	occurrenceRepo   domain.OccurrenceRepository
	canonicalRepo    domain.CanonicalRepository
	ticketRepo       domain.TicketRepository
	routingRepo      domain.RoutingRepository
	jobRepo          domain.JobRepository

	syncService     *service.MailboxSyncService
	pipeline        *pipeline.Pipeline
	outboundService *service.OutboundService
	opsService      *service.OpsService
	host            *worker.Host

	// mockDB skips InitDB entirely; tests inject sqlmock here.
	mockDB *sql.DB
}

// AppOption configures the App
type AppOption func(*App)

// WithMockDB injects a database handle and skips connection setup
func WithMockDB(db *sql.DB) AppOption {
	return func(a *App) {
		a.mockDB = db
	}
}

// WithLogger sets a custom logger
func WithLogger(log logger.Logger) AppOption {
	return func(a *App) {
		a.logger = log
	}
}

// WithMailProvider injects a provider, replacing the Gmail client.
func WithMailProvider(p domain.MailProvider) AppOption {
	return func(a *App) {
		a.provider = p
	}
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	app := &App{
		config: cfg,
		logger: logger.NewLoggerWithLevel(cfg.LogLevel),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// InitDB connects to the database, creates the schema and runs migrations.
func (a *App) InitDB() error {
	if a.mockDB != nil {
		a.db = a.mockDB
		return nil
	}

	a.logger.Info(fmt.Sprintf("Connecting to database %s:%d, dbname %s, sslmode %s",
		a.config.Database.Host, a.config.Database.Port, a.config.Database.DBName, a.config.Database.SSLMode))

	db, err := database.Connect(&a.config.Database)
	if err != nil {
		return err
	}
	if err := database.InitializeDatabase(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := migrations.NewManager(a.logger).RunMigrations(context.Background(), a.config, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	a.db = db
	return nil
}

// InitBlobStore builds the configured blob driver.
func (a *App) InitBlobStore() error {
	store, err := blob.NewStore(blob.Config{
		Driver:         a.config.Blob.Driver,
		Root:           a.config.Blob.Root,
		Bucket:         a.config.Blob.Bucket,
		Region:         a.config.Blob.Region,
		Endpoint:       a.config.Blob.Endpoint,
		AccessKey:      a.config.Blob.AccessKey,
		SecretKey:      a.config.Blob.SecretKey,
		ForcePathStyle: a.config.Blob.ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	a.blobs = store
	return nil
}

// InitRepositories initializes all repositories
func (a *App) InitRepositories() error {
	a.organizationRepo = repository.NewOrganizationRepository(a.db)
	a.credentialRepo = repository.NewCredentialRepository(a.db)
	a.mailboxRepo = repository.NewMailboxRepository(a.db)
	a.blobRepo = repository.NewBlobRepository(a.db)
	a.occurrenceRepo = repository.NewOccurrenceRepository(a.db)
	a.canonicalRepo = repository.NewCanonicalRepository(a.db)
	a.ticketRepo = repository.NewTicketRepository(a.db)
	a.routingRepo = repository.NewRoutingRepository(a.db)
	a.jobRepo = repository.NewJobRepository(a.db)
	return nil
}

// InitServices builds the services and registers the job handlers.
func (a *App) InitServices() error {
	if a.provider == nil {
		a.provider = provider.NewGmailProvider(a.config, a.credentialRepo, a.logger)
	}

	a.syncService = service.NewMailboxSyncService(
		a.db,
		&a.config.Sync,
		a.provider,
		a.mailboxRepo,
		a.occurrenceRepo,
		a.jobRepo,
		a.logger,
	)

	a.pipeline = pipeline.New(pipeline.Config{
		DB:       a.db,
		Blobs:    a.blobs,
		Provider: a.provider,

		OrganizationRepo: a.organizationRepo,
		MailboxRepo:      a.mailboxRepo,
		BlobRepo:         a.blobRepo,
		OccurrenceRepo:   a.occurrenceRepo,
		CanonicalRepo:    a.canonicalRepo,
		TicketRepo:       a.ticketRepo,
		RoutingRepo:      a.routingRepo,
		JobRepo:          a.jobRepo,

		Logger: a.logger,
	})

	a.outboundService = service.NewOutboundService(
		a.db,
		&a.config.SMTP,
		a.organizationRepo,
		a.mailboxRepo,
		a.ticketRepo,
		a.canonicalRepo,
		a.jobRepo,
		a.logger,
	)

	a.opsService = service.NewOpsService(
		a.db,
		a.jobRepo,
		a.mailboxRepo,
		a.occurrenceRepo,
		a.canonicalRepo,
		a.logger,
	)

	a.host = worker.NewHost(&a.config.Worker, a.jobRepo, a.logger)
	a.host.Register(domain.JobTypeMailboxBackfill, a.syncService.HandleBackfill)
	a.host.Register(domain.JobTypeMailboxHistorySync, a.syncService.HandleHistorySync)
	a.host.Register(domain.JobTypeOccurrenceFetchRaw, a.pipeline.HandleFetchRaw)
	a.host.Register(domain.JobTypeOccurrenceParse, a.pipeline.HandleParse)
	a.host.Register(domain.JobTypeOccurrenceStitch, a.pipeline.HandleStitch)
	a.host.Register(domain.JobTypeTicketApplyRouting, a.pipeline.HandleRoute)
	return nil
}

// Initialize initializes all components
func (a *App) Initialize() error {
	if err := a.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := a.InitBlobStore(); err != nil {
		return err
	}
	if err := a.InitRepositories(); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if err := a.InitServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	return nil
}

// Run starts the job host and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.WithField("version", a.config.Version).Info("Starting worker")
	return a.host.Run(ctx)
}

// Shutdown releases process resources after the host has drained.
func (a *App) Shutdown() error {
	if a.db != nil && a.mockDB == nil {
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	a.logger.Info("Worker shut down")
	return nil
}

// SyncService exposes the mailbox sync controller for the admin surface.
func (a *App) SyncService() *service.MailboxSyncService { return a.syncService }

// Pipeline exposes the occurrence pipeline, including routing simulation.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// OutboundService exposes outbound reply queueing.
func (a *App) OutboundService() *service.OutboundService { return a.outboundService }

// OpsService exposes the admin ops surface.
func (a *App) OpsService() *service.OpsService { return a.opsService }

// DB exposes the database handle.
func (a *App) DB() *sql.DB { return a.db }

// Logger exposes the process logger.
func (a *App) Logger() logger.Logger { return a.logger }
