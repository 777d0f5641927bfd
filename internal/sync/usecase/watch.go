package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/repository"
	"github.com/domsius/email-assistant/internal/provider"

	"github.com/google/uuid"
)

// WatchManager owns provider push channels. Gmail watches land on a Pub/Sub
// topic; Graph subscriptions call back on the public notification URL with a
// per-subscription client state secret.
type WatchManager struct {
	accounts repository.AccountRepository
	subs     repository.SubscriptionRepository
	tokens   *TokenManager
	clients  map[domain.ProviderKind]provider.Client

	topicName       string
	notificationURL string
}

func NewWatchManager(
	accounts repository.AccountRepository,
	subs repository.SubscriptionRepository,
	tokens *TokenManager,
	clients map[domain.ProviderKind]provider.Client,
	topicName, notificationURL string,
) *WatchManager {
	return &WatchManager{
		accounts:        accounts,
		subs:            subs,
		tokens:          tokens,
		clients:         clients,
		topicName:       topicName,
		notificationURL: notificationURL,
	}
}

// EnsureWatch registers (or re-registers) the push channel for an account.
// Providers without push support are a silent no-op.
func (w *WatchManager) EnsureWatch(ctx context.Context, account *domain.Account) error {
	if !account.SupportsPush() {
		return nil
	}

	cred, err := w.tokens.EnsureValid(ctx, account)
	if err != nil {
		return err
	}
	client, ok := w.clients[account.Provider]
	if !ok {
		return fmt.Errorf("no client registered for provider %s", account.Provider)
	}

	clientState := uuid.New().String()
	handle, err := client.RegisterWatch(ctx, cred, provider.WatchOptions{
		TopicName:       w.topicName,
		NotificationURL: w.notificationURL,
		ClientState:     clientState,
	}, w.tokens.PersistCallback(account.ID))
	if err != nil {
		if errors.Is(err, provider.ErrNotSupported) {
			return nil
		}
		return fmt.Errorf("failed to register watch for account %s: %w", account.ID, err)
	}

	sub := &domain.WebhookSubscription{
		ID:             uuid.New().String(),
		AccountID:      account.ID,
		Provider:       account.Provider,
		SubscriptionID: handle.SubscriptionID,
		ClientState:    clientState,
		ExpiresAt:      handle.Expiration,
	}
	if err := w.subs.Upsert(sub); err != nil {
		return fmt.Errorf("failed to store subscription for account %s: %w", account.ID, err)
	}
	log.Printf("[Watch] Registered %s watch for account %s (expires %s)", account.Provider, account.ID, handle.Expiration.Format(time.RFC3339))
	return nil
}

// StopWatch tears down the account's push channel. Missing subscriptions and
// provider-side teardown failures are logged, not fatal, so disconnect always
// proceeds.
func (w *WatchManager) StopWatch(ctx context.Context, account *domain.Account) {
	if !account.SupportsPush() {
		return
	}

	sub, err := w.subs.FindByAccount(account.ID, account.Provider)
	if err != nil || sub == nil {
		return
	}

	cred, err := w.tokens.EnsureValid(ctx, account)
	if err == nil {
		client := w.clients[account.Provider]
		if err := client.StopWatch(ctx, cred, sub.SubscriptionID, w.tokens.PersistCallback(account.ID)); err != nil && !errors.Is(err, provider.ErrNotSupported) {
			log.Printf("[Watch] Failed to stop %s watch for account %s: %v", account.Provider, account.ID, err)
		}
	}

	if err := w.subs.DeleteByAccount(account.ID, account.Provider); err != nil {
		log.Printf("[Watch] Failed to delete subscription row for account %s: %v", account.ID, err)
	}
}

// RenewExpiring re-registers every subscription expiring before the deadline.
func (w *WatchManager) RenewExpiring(ctx context.Context, deadline time.Time) {
	subs, err := w.subs.ListExpiringBefore(deadline)
	if err != nil {
		log.Printf("[Watch] Failed to list expiring subscriptions: %v", err)
		return
	}
	for _, sub := range subs {
		account, err := w.accounts.FindByID(sub.AccountID)
		if err != nil || account == nil {
			log.Printf("[Watch] Subscription %s has no account %s, removing", sub.ID, sub.AccountID)
			if err := w.subs.DeleteByAccount(sub.AccountID, sub.Provider); err != nil {
				log.Printf("[Watch] Failed to remove orphan subscription %s: %v", sub.ID, err)
			}
			continue
		}
		if err := w.EnsureWatch(ctx, account); err != nil {
			log.Printf("[Watch] Failed to renew watch for account %s: %v", account.ID, err)
		}
	}
}
