package repository

import (
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"

	"gorm.io/gorm"
)

// accountRepository implements AccountRepository on gorm.
type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(account *domain.Account) error {
	return r.db.Create(account).Error
}

func (r *accountRepository) Update(account *domain.Account) error {
	return r.db.Save(account).Error
}

func (r *accountRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&domain.Account{}).Error
}

func (r *accountRepository) FindByID(id string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByOAuthState(state string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.Where("o_auth_state = ?", state).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByProviderEmail(provider domain.ProviderKind, email string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.Where("provider = ? AND email = ?", provider, email).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListByUser(userID string) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := r.db.Where("user_id = ? AND email <> ''", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) ListSyncable() ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := r.db.Where("needs_reauth = ? AND email <> ''", false).Find(&accounts).Error
	return accounts, err
}

// ClaimForSync is the single serialization point for sync runs. The guarded
// UPDATE wins for exactly one caller; everyone else sees zero rows affected
// and gets ErrAlreadySyncing. An expired lease is claimable again, which is
// how accounts wedged by a crashed worker recover.
func (r *accountRepository) ClaimForSync(id string, lease time.Duration) (*domain.Account, error) {
	now := time.Now()
	result := r.db.Model(&domain.Account{}).
		Where("id = ? AND (sync_state <> ? OR lease_expires_at IS NULL OR lease_expires_at < ?)",
			id, domain.SyncStateSyncing, now).
		Updates(map[string]interface{}{
			"sync_state":        domain.SyncStateSyncing,
			"sync_processed":    0,
			"sync_total":        0,
			"sync_error":        "",
			"sync_started_at":   now,
			"sync_completed_at": nil,
			"lease_expires_at":  now.Add(lease),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadySyncing
	}

	var account domain.Account
	if err := r.db.Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) UpdateProgress(id string, processed, total int) error {
	return r.db.Model(&domain.Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_processed": processed,
			"sync_total":     total,
		}).Error
}

func (r *accountRepository) AdvanceCursor(id string, cursor string) error {
	return r.db.Model(&domain.Account{}).Where("id = ?", id).
		Update("sync_cursor", cursor).Error
}

func (r *accountRepository) CompleteSync(id string, cursor string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"sync_state":        domain.SyncStateCompleted,
		"sync_error":        "",
		"sync_completed_at": now,
		"lease_expires_at":  nil,
	}
	if cursor != "" {
		updates["sync_cursor"] = cursor
	}
	return r.db.Model(&domain.Account{}).Where("id = ?", id).Updates(updates).Error
}

func (r *accountRepository) FailSync(id string, message string, needsReauth bool) error {
	now := time.Now()
	return r.db.Model(&domain.Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_state":        domain.SyncStateFailed,
			"sync_error":        message,
			"sync_completed_at": now,
			"lease_expires_at":  nil,
			"needs_reauth":      needsReauth,
		}).Error
}

func (r *accountRepository) SaveTokens(id, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"needs_reauth": false,
	}
	// An empty refresh token on a refresh response means "keep the old one".
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.Model(&domain.Account{}).Where("id = ?", id).Updates(updates).Error
}
