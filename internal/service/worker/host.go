// Package worker runs the job host: per-type lease loops over the durable
// queue, correlation-ID tracing per execution, and the lock reaper.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

// Handler executes one leased job. A nil return completes the job; a
// permanent error moves it to dead; domain.ErrJobAbandoned means the handler
// already put the job in a terminal state.
type Handler func(ctx context.Context, job *domain.Job) error

// Host owns the slot loops. Concurrency is per job family: sync slots share
// one pool across both mailbox job types, pipeline stages get their own.
// outbound_send is leased by the external send subsystem, never here.
type Host struct {
	cfg      *config.WorkerConfig
	jobs     domain.JobRepository
	logger   logger.Logger
	workerID string
	handlers map[domain.JobType]Handler
}

// NewHost creates a worker host with no handlers registered.
func NewHost(cfg *config.WorkerConfig, jobs domain.JobRepository, log logger.Logger) *Host {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	return &Host{
		cfg:      cfg,
		jobs:     jobs,
		logger:   log,
		workerID: fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		handlers: make(map[domain.JobType]Handler),
	}
}

// Register binds a handler to a job type.
func (h *Host) Register(jobType domain.JobType, handler Handler) {
	h.handlers[jobType] = handler
}

type slotFamily struct {
	name       string
	types      []domain.JobType
	slots      int
	visibility time.Duration
}

func (h *Host) families() []slotFamily {
	return []slotFamily{
		{"sync", []domain.JobType{domain.JobTypeMailboxBackfill, domain.JobTypeMailboxHistorySync}, h.cfg.SyncConcurrency, h.cfg.SyncVisibility},
		{"fetch", []domain.JobType{domain.JobTypeOccurrenceFetchRaw}, h.cfg.FetchConcurrency, h.cfg.FetchVisibility},
		{"parse", []domain.JobType{domain.JobTypeOccurrenceParse}, h.cfg.ParseConcurrency, h.cfg.ParseVisibility},
		{"stitch", []domain.JobType{domain.JobTypeOccurrenceStitch}, h.cfg.StitchConcurrency, h.cfg.StitchVisibility},
		{"route", []domain.JobType{domain.JobTypeTicketApplyRouting}, h.cfg.RouteConcurrency, h.cfg.RouteVisibility},
	}
}

// visibilityFor is the lease length for a family, falling back to the global
// timeout when no per-family value is configured.
func (h *Host) visibilityFor(family slotFamily) time.Duration {
	if family.visibility > 0 {
		return family.visibility
	}
	return h.cfg.VisibilityTimeout
}

// Run blocks until ctx is cancelled, then drains: slots stop leasing and
// finish their in-flight job; whatever outlives the process is recovered by
// the reaper on the next boot.
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, family := range h.families() {
		types := h.registeredTypes(family.types)
		if len(types) == 0 || family.slots <= 0 {
			continue
		}
		visibility := h.visibilityFor(family)
		for i := 0; i < family.slots; i++ {
			slot := fmt.Sprintf("%s-%d", family.name, i)
			g.Go(func() error {
				return h.runSlot(ctx, slot, types, visibility)
			})
		}
	}
	g.Go(func() error {
		return h.runReaper(ctx)
	})

	h.logger.WithField("worker_id", h.workerID).Info("Worker host started")
	err := g.Wait()
	h.logger.WithField("worker_id", h.workerID).Info("Worker host stopped")
	return err
}

func (h *Host) registeredTypes(types []domain.JobType) []domain.JobType {
	out := make([]domain.JobType, 0, len(types))
	for _, t := range types {
		if _, ok := h.handlers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (h *Host) runSlot(ctx context.Context, slot string, types []domain.JobType, visibility time.Duration) error {
	workerID := fmt.Sprintf("%s-%s", h.workerID, slot)
	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := h.jobs.Lease(ctx, types, workerID, visibility)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.logger.WithField("slot", slot).Error(fmt.Sprintf("Failed to lease job: %v", err))
			h.wait(ctx)
			continue
		}
		if job == nil {
			h.wait(ctx)
			continue
		}

		// A leased job drains to completion on shutdown: the execution
		// context outlives the cancelled run context, bounded by the lease
		// so a stuck handler still yields the job to the reaper.
		execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), visibility)
		h.execute(execCtx, job)
		cancel()
	}
}

func (h *Host) execute(ctx context.Context, job *domain.Job) {
	log := h.logger.WithFields(map[string]interface{}{
		"correlation_id":  fmt.Sprintf("%s:%s:%d", job.OrganizationID, job.ID, job.Attempts),
		"job_id":          job.ID,
		"job_type":        string(job.Type),
		"organization_id": job.OrganizationID,
		"attempt":         job.Attempts,
	})

	handler, ok := h.handlers[job.Type]
	if !ok {
		// Leasing filters on registered types, so this is a wiring bug.
		log.Error("No handler registered for leased job type")
		if err := h.jobs.Fail(ctx, job.ID, "no handler registered", true); err != nil {
			log.Error(fmt.Sprintf("Failed to fail job: %v", err))
		}
		return
	}

	log.Debug("Job execution started")
	err := handler(ctx, job)
	switch {
	case err == nil:
		if completeErr := h.jobs.Complete(ctx, job.ID); completeErr != nil {
			log.Error(fmt.Sprintf("Failed to complete job: %v", completeErr))
			return
		}
		log.Info("Job completed")
	case errors.Is(err, domain.ErrJobAbandoned):
		log.Warn(fmt.Sprintf("Job abandoned: %v", err))
	default:
		permanent := domain.IsPermanent(err)
		if failErr := h.jobs.Fail(ctx, job.ID, err.Error(), permanent); failErr != nil {
			log.Error(fmt.Sprintf("Failed to record job failure: %v", failErr))
		}
		if permanent {
			log.Error(fmt.Sprintf("Job failed permanently: %v", err))
		} else {
			log.Warn(fmt.Sprintf("Job failed, will retry: %v", err))
		}
	}
}

func (h *Host) runReaper(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reaped, err := h.jobs.ReapExpired(ctx)
			if err != nil {
				h.logger.Error(fmt.Sprintf("Failed to reap expired leases: %v", err))
				continue
			}
			if reaped > 0 {
				h.logger.WithField("reaped", reaped).Warn("Requeued jobs with expired leases")
			}
		}
	}
}

func (h *Host) wait(ctx context.Context) {
	timer := time.NewTimer(h.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
