package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/repository"
	"github.com/domsius/email-assistant/internal/provider"
	"github.com/domsius/email-assistant/pkg/config"

	"github.com/google/uuid"
)

// Orchestrator owns the sync worker pool. Single-flight per account is
// enforced by the lease claim in the account repository, so concurrent
// triggers for one account collapse into one run no matter which process
// they land on.
type Orchestrator struct {
	accounts  repository.AccountRepository
	runs      repository.SyncRunRepository
	queue     *TriggerQueue
	tokens    *TokenManager
	discovery *Discovery
	ingestion *Ingestion
	clients   map[domain.ProviderKind]provider.Client

	workers     int
	lease       time.Duration
	maxRetries  int
	backoffBase time.Duration

	wg sync.WaitGroup
}

func NewOrchestrator(
	accounts repository.AccountRepository,
	runs repository.SyncRunRepository,
	queue *TriggerQueue,
	tokens *TokenManager,
	discovery *Discovery,
	ingestion *Ingestion,
	clients map[domain.ProviderKind]provider.Client,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		accounts:    accounts,
		runs:        runs,
		queue:       queue,
		tokens:      tokens,
		discovery:   discovery,
		ingestion:   ingestion,
		clients:     clients,
		workers:     cfg.SyncWorkers,
		lease:       cfg.SyncLease,
		maxRetries:  cfg.SyncMaxRetries,
		backoffBase: cfg.SyncBackoffBase,
	}
}

// Start launches the worker pool. Workers drain the trigger queue until the
// context ends.
func (o *Orchestrator) Start(ctx context.Context) {
	log.Printf("[Sync] Starting %d sync workers", o.workers)
	for w := 0; w < o.workers; w++ {
		o.wg.Add(1)
		go func(id int) {
			defer o.wg.Done()
			for {
				trigger, ok := o.queue.Dequeue(ctx)
				if !ok {
					return
				}
				if err := o.RunSync(ctx, trigger.AccountID, trigger.Source); err != nil {
					log.Printf("[Sync] Worker %d: sync of account %s failed: %v", id, trigger.AccountID, err)
				}
			}
		}(w)
	}
}

// Wait blocks until all workers have exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Enqueue requests a sync run. Webhook-driven triggers preempt polls.
func (o *Orchestrator) Enqueue(accountID, source string) bool {
	urgent := source == "webhook" || source == "manual" || source == "initial"
	return o.queue.Enqueue(Trigger{AccountID: accountID, Source: source}, urgent)
}

// RunSync executes one full sync of one account. A trigger that loses the
// claim race returns nil without doing work.
func (o *Orchestrator) RunSync(ctx context.Context, accountID, source string) error {
	account, err := o.accounts.ClaimForSync(accountID, o.lease)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadySyncing) {
			log.Printf("[Sync] Account %s already syncing, dropping %s trigger", accountID, source)
			return nil
		}
		return fmt.Errorf("failed to claim account %s: %w", accountID, err)
	}

	run := &domain.SyncRun{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Trigger:   source,
		StartedAt: time.Now(),
	}
	if err := o.runs.Create(run); err != nil {
		log.Printf("[Sync] Failed to record sync run for account %s: %v", accountID, err)
	}

	log.Printf("[Sync] Starting %s sync for account %s (%s)", source, account.ID, account.Provider)
	processed, skipped, finalCursor, err := o.sync(ctx, account)
	if err != nil {
		needsReauth := errors.Is(err, ErrNeedsReauth) || errors.Is(err, provider.ErrAuth)
		if failErr := o.accounts.FailSync(accountID, err.Error(), needsReauth); failErr != nil {
			log.Printf("[Sync] Failed to record failure for account %s: %v", accountID, failErr)
		}
		o.finishRun(run.ID, "failed", processed, skipped, err.Error())
		return err
	}

	if err := o.accounts.CompleteSync(accountID, finalCursor); err != nil {
		return fmt.Errorf("failed to complete sync for account %s: %w", accountID, err)
	}
	o.finishRun(run.ID, "completed", processed, skipped, "")
	log.Printf("[Sync] Completed sync for account %s: %d processed, %d skipped", accountID, processed, skipped)
	return nil
}

func (o *Orchestrator) sync(ctx context.Context, account *domain.Account) (processed, skipped int, finalCursor string, err error) {
	finalCursor = account.SyncCursor

	cred, err := o.tokens.EnsureValid(ctx, account)
	if err != nil {
		return 0, 0, finalCursor, err
	}

	client, ok := o.clients[account.Provider]
	if !ok {
		return 0, 0, finalCursor, fmt.Errorf("no client registered for provider %s", account.Provider)
	}
	onRefresh := o.tokens.PersistCallback(account.ID)

	state := &DiscoveryState{Cursor: account.SyncCursor}
	for {
		select {
		case <-ctx.Done():
			return processed, skipped, finalCursor, ctx.Err()
		default:
		}

		var page *provider.ChangePage
		err = o.withRetry(ctx, "list changes", func() error {
			var listErr error
			page, listErr = o.discovery.NextPage(ctx, client, cred, state, onRefresh)
			return listErr
		})
		if err != nil {
			return processed, skipped, finalCursor, fmt.Errorf("change discovery failed: %w", err)
		}
		if page == nil {
			break
		}

		if page.TotalEstimate > 0 {
			if err := o.accounts.UpdateProgress(account.ID, processed, page.TotalEstimate); err != nil {
				log.Printf("[Sync] Failed to update progress for account %s: %v", account.ID, err)
			}
		}

		for _, record := range page.Records {
			select {
			case <-ctx.Done():
				return processed, skipped, finalCursor, ctx.Err()
			default:
			}

			ingestErr := o.withRetry(ctx, "ingest message", func() error {
				_, err := o.ingestion.Ingest(ctx, client, cred, account.ID, record, onRefresh)
				return err
			})
			if ingestErr != nil {
				if errors.Is(ingestErr, provider.ErrAuth) || errors.Is(ingestErr, ErrNeedsReauth) {
					return processed, skipped, finalCursor, ingestErr
				}
				// One bad message must not sink the run.
				skipped++
				log.Printf("[Sync] Skipping message %s for account %s: %v", record.NativeID, account.ID, ingestErr)
				continue
			}
			processed++

			if err := o.accounts.UpdateProgress(account.ID, processed, page.TotalEstimate); err != nil {
				log.Printf("[Sync] Failed to update progress for account %s: %v", account.ID, err)
			}
		}

		// The page's records are durable now, so its cursor is safe to keep.
		if page.NextCursor != "" {
			finalCursor = page.NextCursor
			if err := o.accounts.AdvanceCursor(account.ID, finalCursor); err != nil {
				log.Printf("[Sync] Failed to advance cursor for account %s: %v", account.ID, err)
			}
		}

		if page.NextPageToken == "" {
			break
		}
	}

	return processed, skipped, finalCursor, nil
}

// withRetry retries retryable provider failures with exponential backoff and
// jitter. Auth and not-supported failures pass through immediately.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			delay := o.backoffBase << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(o.backoffBase)))
			log.Printf("[Sync] Retrying %s in %s (attempt %d/%d): %v", op, delay, attempt, o.maxRetries, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn()
		if err == nil || !provider.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) finishRun(runID, outcome string, processed, skipped int, errMsg string) {
	if err := o.runs.Finish(runID, outcome, processed, skipped, errMsg); err != nil {
		log.Printf("[Sync] Failed to finish sync run %s: %v", runID, err)
	}
}
