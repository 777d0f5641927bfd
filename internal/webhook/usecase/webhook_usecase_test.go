package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/repository"
	syncusecase "github.com/domsius/email-assistant/internal/sync/usecase"
	"github.com/domsius/email-assistant/pkg/config"
)

// stubAccounts overrides only the lookup the webhook path uses.
type stubAccounts struct {
	repository.AccountRepository
	account *domain.Account
}

func (s *stubAccounts) FindByProviderEmail(kind domain.ProviderKind, email string) (*domain.Account, error) {
	if s.account != nil && s.account.Provider == kind && s.account.Email == email {
		return s.account, nil
	}
	return nil, nil
}

type stubSubs struct {
	repository.SubscriptionRepository
	sub *domain.WebhookSubscription
}

func (s *stubSubs) FindBySubscriptionID(kind domain.ProviderKind, subscriptionID string) (*domain.WebhookSubscription, error) {
	if s.sub != nil && s.sub.Provider == kind && s.sub.SubscriptionID == subscriptionID {
		return s.sub, nil
	}
	return nil, nil
}

func newTestSetup(account *domain.Account, sub *domain.WebhookSubscription) (WebhookUsecase, *syncusecase.TriggerQueue) {
	queue := syncusecase.NewTriggerQueue(8)
	orchestrator := syncusecase.NewOrchestrator(nil, nil, queue, nil, nil, nil, nil, &config.Config{
		SyncWorkers: 1,
		SyncLease:   time.Minute,
	})
	uc := NewWebhookUsecase(&stubAccounts{account: account}, &stubSubs{sub: sub}, orchestrator)
	return uc, queue
}

func drainOne(t *testing.T, queue *syncusecase.TriggerQueue) (syncusecase.Trigger, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	return queue.Dequeue(ctx)
}

func TestHandleGmailTriggersSync(t *testing.T) {
	account := &domain.Account{ID: "acc1", Provider: domain.ProviderGmail, Email: "user@gmail.com"}
	uc, queue := newTestSetup(account, nil)

	uc.HandleGmail(&GmailNotification{EmailAddress: "user@gmail.com", HistoryID: 100})

	trigger, ok := drainOne(t, queue)
	if !ok {
		t.Fatal("expected a sync trigger")
	}
	if trigger.AccountID != "acc1" || trigger.Source != "webhook" {
		t.Errorf("trigger = %+v", trigger)
	}
}

func TestHandleGmailUnknownAccountDropped(t *testing.T) {
	uc, queue := newTestSetup(nil, nil)

	uc.HandleGmail(&GmailNotification{EmailAddress: "nobody@gmail.com", HistoryID: 100})

	if _, ok := drainOne(t, queue); ok {
		t.Error("unknown mailbox must not produce a trigger")
	}
}

func TestHandleGmailDeduplicates(t *testing.T) {
	account := &domain.Account{ID: "acc1", Provider: domain.ProviderGmail, Email: "user@gmail.com"}
	uc, queue := newTestSetup(account, nil)

	uc.HandleGmail(&GmailNotification{EmailAddress: "user@gmail.com", HistoryID: 100})
	uc.HandleGmail(&GmailNotification{EmailAddress: "user@gmail.com", HistoryID: 100})
	uc.HandleGmail(&GmailNotification{EmailAddress: "user@gmail.com", HistoryID: 99})

	if _, ok := drainOne(t, queue); !ok {
		t.Fatal("first notification should trigger")
	}
	if _, ok := drainOne(t, queue); ok {
		t.Error("replayed history ids must be deduplicated")
	}

	uc.HandleGmail(&GmailNotification{EmailAddress: "user@gmail.com", HistoryID: 101})
	if _, ok := drainOne(t, queue); !ok {
		t.Error("a newer history id should trigger again")
	}
}

func TestHandleGraphClientStateMismatchDropped(t *testing.T) {
	sub := &domain.WebhookSubscription{
		AccountID:      "acc1",
		Provider:       domain.ProviderOutlook,
		SubscriptionID: "sub-1",
		ClientState:    "real-secret",
	}
	uc, queue := newTestSetup(nil, sub)

	uc.HandleGraph("sub-1", "forged-secret")
	if _, ok := drainOne(t, queue); ok {
		t.Error("mismatched client state must not produce a trigger")
	}

	uc.HandleGraph("sub-1", "real-secret")
	trigger, ok := drainOne(t, queue)
	if !ok {
		t.Fatal("valid client state should trigger")
	}
	if trigger.AccountID != "acc1" {
		t.Errorf("trigger account = %s, want acc1", trigger.AccountID)
	}
}

func TestHandleGraphUnknownSubscriptionDropped(t *testing.T) {
	uc, queue := newTestSetup(nil, nil)

	uc.HandleGraph("sub-unknown", "anything")
	if _, ok := drainOne(t, queue); ok {
		t.Error("unknown subscription must not produce a trigger")
	}
}
