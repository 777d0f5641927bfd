package domain

import (
	"time"

	"gorm.io/gorm"
)

// ProviderKind identifies the mail provider behind an account.
type ProviderKind string

const (
	ProviderGmail   ProviderKind = "gmail"
	ProviderOutlook ProviderKind = "outlook"
	ProviderIMAP    ProviderKind = "imap"
)

// SyncState is the per-account sync lifecycle state.
type SyncState string

const (
	SyncStateIdle      SyncState = "idle"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateCompleted SyncState = "completed"
	SyncStateFailed    SyncState = "failed"
)

// Account is one connected mailbox. Credential columns are encrypted at rest;
// decryption happens in the usecase layer. At most one sync run may hold the
// syncing state at a time; the claim query in the repository enforces this,
// not in-process locking, so it survives restarts.
type Account struct {
	ID       string       `json:"id" gorm:"primaryKey"`
	UserID   string       `json:"user_id" gorm:"index;not null"`
	Email    string       `json:"email" gorm:"index"`
	Provider ProviderKind `json:"provider" gorm:"index;not null"`

	// OAuth credential (gmail, outlook), encrypted at rest
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`
	NeedsReauth  bool      `json:"needs_reauth"`

	// IMAP credential, password encrypted at rest
	ImapServer   string `json:"imap_server,omitempty"`
	ImapPort     int    `json:"imap_port,omitempty"`
	ImapPassword string `json:"-"`

	// OAuthState binds a pending connection to one consent flow.
	OAuthState string `json:"-" gorm:"index"`

	// SyncCursor is the opaque provider position: Gmail history id,
	// Graph delta link, or IMAP UID high-water mark. Advanced only after
	// the corresponding messages are durably persisted.
	SyncCursor string `json:"-"`

	SyncState       SyncState  `json:"sync_state" gorm:"default:idle"`
	SyncProcessed   int        `json:"sync_processed"`
	SyncTotal       int        `json:"sync_total"`
	SyncError       string     `json:"sync_error"`
	SyncStartedAt   *time.Time `json:"sync_started_at,omitempty"`
	SyncCompletedAt *time.Time `json:"sync_completed_at,omitempty"`

	// LeaseExpiresAt bounds how long a claimed run may hold the syncing
	// state; an expired lease makes the account claimable again.
	LeaseExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// SupportsPush reports whether the provider can deliver change notifications.
func (a *Account) SupportsPush() bool {
	return a.Provider == ProviderGmail || a.Provider == ProviderOutlook
}

// WebhookSubscription is a registered push channel with a provider. One active
// subscription per account per provider.
type WebhookSubscription struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	AccountID string       `json:"account_id" gorm:"uniqueIndex:idx_sub_account_provider;not null"`
	Provider  ProviderKind `json:"provider" gorm:"uniqueIndex:idx_sub_account_provider;not null"`

	// SubscriptionID is the provider-side channel identifier.
	SubscriptionID string `json:"subscription_id" gorm:"index"`
	// ClientState is the verification secret echoed back on delivery.
	ClientState string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncRun records one orchestrated sync run for the dashboard's history view.
type SyncRun struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index;not null"`
	Trigger   string `json:"trigger"`

	Outcome   string `json:"outcome"` // completed | failed
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
