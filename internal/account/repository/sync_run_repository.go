package repository

import (
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// syncRunRepository implements SyncRunRepository on gorm.
type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return r.db.Create(run).Error
}

func (r *syncRunRepository) Finish(id string, outcome string, processed, skipped int, errMsg string) error {
	now := time.Now()
	return r.db.Model(&domain.SyncRun{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"outcome":      outcome,
			"processed":    processed,
			"skipped":      skipped,
			"error":        errMsg,
			"completed_at": now,
		}).Error
}

func (r *syncRunRepository) ListByAccount(accountID string, limit int) ([]*domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []*domain.SyncRun
	err := r.db.Where("account_id = ?", accountID).
		Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
