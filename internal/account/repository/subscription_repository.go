package repository

import (
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// subscriptionRepository implements SubscriptionRepository on gorm.
type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Upsert keeps at most one subscription per (account, provider), replacing
// the channel id, secret, and expiry on renewal.
func (r *subscriptionRepository) Upsert(sub *domain.WebhookSubscription) error {
	var existing domain.WebhookSubscription
	err := r.db.Where("account_id = ? AND provider = ?", sub.AccountID, sub.Provider).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		if sub.ID == "" {
			sub.ID = uuid.New().String()
		}
		return r.db.Create(sub).Error
	} else if err != nil {
		return err
	}

	existing.SubscriptionID = sub.SubscriptionID
	existing.ClientState = sub.ClientState
	existing.ExpiresAt = sub.ExpiresAt
	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	sub.ID = existing.ID
	return nil
}

func (r *subscriptionRepository) FindByAccount(accountID string, provider domain.ProviderKind) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	err := r.db.Where("account_id = ? AND provider = ?", accountID, provider).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindBySubscriptionID(provider domain.ProviderKind, subscriptionID string) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	err := r.db.Where("provider = ? AND subscription_id = ?", provider, subscriptionID).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListExpiringBefore(deadline time.Time) ([]*domain.WebhookSubscription, error) {
	var subs []*domain.WebhookSubscription
	err := r.db.Where("expires_at < ?", deadline).Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) DeleteByAccount(accountID string, provider domain.ProviderKind) error {
	return r.db.Where("account_id = ? AND provider = ?", accountID, provider).
		Delete(&domain.WebhookSubscription{}).Error
}
