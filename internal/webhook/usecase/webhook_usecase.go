package usecase

import (
	"crypto/subtle"
	"log"
	"sync"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/repository"
	syncusecase "github.com/domsius/email-assistant/internal/sync/usecase"
)

// GmailNotification is the payload Gmail publishes to the Pub/Sub topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// WebhookUsecase turns provider notifications into urgent sync triggers.
// Notifications are hints, not data: the actual changes are discovered from
// the stored cursor, so losing or dropping one costs only latency.
type WebhookUsecase interface {
	HandleGmail(n *GmailNotification)
	HandleGraph(subscriptionID, clientState string)
}

type webhookUsecase struct {
	accounts     repository.AccountRepository
	subs         repository.SubscriptionRepository
	orchestrator *syncusecase.Orchestrator

	// Deduplication: Gmail re-publishes the same historyId on every label
	// change, track the last seen per account.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewWebhookUsecase(accounts repository.AccountRepository, subs repository.SubscriptionRepository, orchestrator *syncusecase.Orchestrator) WebhookUsecase {
	return &webhookUsecase{
		accounts:      accounts,
		subs:          subs,
		orchestrator:  orchestrator,
		lastHistoryID: make(map[string]uint64),
	}
}

func (u *webhookUsecase) HandleGmail(n *GmailNotification) {
	account, err := u.accounts.FindByProviderEmail(domain.ProviderGmail, n.EmailAddress)
	if err != nil {
		log.Printf("[Webhook] Error looking up account for %s: %v", n.EmailAddress, err)
		return
	}
	if account == nil {
		// Stale watch for a disconnected mailbox; accept and drop.
		log.Printf("[Webhook] No account for notified mailbox %s, dropping", n.EmailAddress)
		return
	}

	u.mu.Lock()
	last, seen := u.lastHistoryID[account.ID]
	if seen && n.HistoryID <= last {
		u.mu.Unlock()
		log.Printf("[Webhook] Skipping duplicate notification for account %s (historyId %d <= last %d)", account.ID, n.HistoryID, last)
		return
	}
	u.lastHistoryID[account.ID] = n.HistoryID
	u.mu.Unlock()

	log.Printf("[Webhook] Gmail notification for account %s (historyId: %d)", account.ID, n.HistoryID)
	u.orchestrator.Enqueue(account.ID, "webhook")
}

func (u *webhookUsecase) HandleGraph(subscriptionID, clientState string) {
	sub, err := u.subs.FindBySubscriptionID(domain.ProviderOutlook, subscriptionID)
	if err != nil {
		log.Printf("[Webhook] Error looking up subscription %s: %v", subscriptionID, err)
		return
	}
	if sub == nil {
		log.Printf("[Webhook] Unknown Graph subscription %s, dropping", subscriptionID)
		return
	}

	if subtle.ConstantTimeCompare([]byte(clientState), []byte(sub.ClientState)) != 1 {
		log.Printf("[Webhook] Client state mismatch for subscription %s, dropping", subscriptionID)
		return
	}

	log.Printf("[Webhook] Graph notification for account %s", sub.AccountID)
	u.orchestrator.Enqueue(sub.AccountID, "webhook")
}
