package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/domsius/email-assistant/internal/account/repository"
	"github.com/domsius/email-assistant/internal/sync/usecase"
	"github.com/domsius/email-assistant/pkg/config"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic work: polling accounts that got no webhook
// (or have none) and renewing provider push channels before they lapse.
type Scheduler struct {
	cron         *cron.Cron
	accounts     repository.AccountRepository
	orchestrator *usecase.Orchestrator
	watches      *usecase.WatchManager

	pollSchedule    string
	renewalSchedule string
	renewalMargin   time.Duration
}

func New(accounts repository.AccountRepository, orchestrator *usecase.Orchestrator, watches *usecase.WatchManager, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:            cron.New(),
		accounts:        accounts,
		orchestrator:    orchestrator,
		watches:         watches,
		pollSchedule:    cfg.PollSchedule,
		renewalSchedule: cfg.WatchRenewalSchedule,
		renewalMargin:   cfg.WatchRenewalMargin,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.pollSchedule, s.pollAll); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.renewalSchedule, s.renewWatches); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Scheduler] Started: poll %q, watch renewal %q", s.pollSchedule, s.renewalSchedule)
	return nil
}

// Stop halts scheduling and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// pollAll enqueues a normal-priority sync for every syncable account. The
// queue and the per-account claim make overlapping cycles harmless.
func (s *Scheduler) pollAll() {
	accounts, err := s.accounts.ListSyncable()
	if err != nil {
		log.Printf("[Scheduler] Failed to list accounts for polling: %v", err)
		return
	}
	for _, account := range accounts {
		s.orchestrator.Enqueue(account.ID, "poll")
	}
	if len(accounts) > 0 {
		log.Printf("[Scheduler] Enqueued poll sync for %d accounts", len(accounts))
	}
}

func (s *Scheduler) renewWatches() {
	s.watches.RenewExpiring(context.Background(), time.Now().Add(s.renewalMargin))
}
