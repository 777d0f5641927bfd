package repository

import (
	"errors"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
)

// ErrAlreadySyncing is returned by ClaimForSync when another run holds the
// account. Callers treat it as a successful no-op, not a failure.
var ErrAlreadySyncing = errors.New("account sync already in progress")

// AccountRepository defines persistence for connected mailbox accounts.
// Sync-state transitions go through the dedicated methods so the single-writer
// discipline is kept in one place.
type AccountRepository interface {
	Create(account *domain.Account) error
	Update(account *domain.Account) error
	Delete(id string) error
	FindByID(id string) (*domain.Account, error)
	FindByOAuthState(state string) (*domain.Account, error)
	FindByProviderEmail(provider domain.ProviderKind, email string) (*domain.Account, error)
	// ListByUser returns the user's connected accounts, oldest first.
	// Pending connections with no mailbox email yet are excluded.
	ListByUser(userID string) ([]*domain.Account, error)
	// ListSyncable returns accounts eligible for scheduled polling.
	ListSyncable() ([]*domain.Account, error)

	// ClaimForSync atomically moves the account into the syncing state with
	// a lease, resetting progress. Returns ErrAlreadySyncing when a live
	// claim exists. An expired lease is claimable.
	ClaimForSync(id string, lease time.Duration) (*domain.Account, error)
	UpdateProgress(id string, processed, total int) error
	// AdvanceCursor persists a durable cursor position mid-run. Must only be
	// called after the records covered by the cursor are persisted.
	AdvanceCursor(id string, cursor string) error
	CompleteSync(id string, cursor string) error
	FailSync(id string, message string, needsReauth bool) error

	// SaveTokens persists a refreshed credential (already encrypted)
	// atomically with the account row.
	SaveTokens(id, accessToken, refreshToken string, expiry time.Time) error
}

// SubscriptionRepository defines persistence for provider push channels.
type SubscriptionRepository interface {
	Upsert(sub *domain.WebhookSubscription) error
	FindByAccount(accountID string, provider domain.ProviderKind) (*domain.WebhookSubscription, error)
	FindBySubscriptionID(provider domain.ProviderKind, subscriptionID string) (*domain.WebhookSubscription, error)
	ListExpiringBefore(deadline time.Time) ([]*domain.WebhookSubscription, error)
	DeleteByAccount(accountID string, provider domain.ProviderKind) error
}

// SyncRunRepository records per-run history for the dashboard.
type SyncRunRepository interface {
	Create(run *domain.SyncRun) error
	Finish(id string, outcome string, processed, skipped int, errMsg string) error
	ListByAccount(accountID string, limit int) ([]*domain.SyncRun, error)
}
