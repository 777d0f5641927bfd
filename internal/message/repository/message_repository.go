package repository

import (
	"github.com/domsius/email-assistant/internal/message/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// messageRepository implements MessageRepository on gorm.
type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Insert(msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	// Unique index on (account_id, provider_message_id) is the idempotency
	// guard; the driver translates conflicts into gorm.ErrDuplicatedKey.
	return r.db.Create(msg).Error
}

func (r *messageRepository) UpdateFlags(accountID, providerMessageID string, read, starred, archived, spam bool) error {
	return r.db.Model(&domain.Message{}).
		Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		Updates(map[string]interface{}{
			"is_read":     read,
			"is_starred":  starred,
			"is_archived": archived,
			"is_spam":     spam,
		}).Error
}

func (r *messageRepository) SoftDelete(accountID, providerMessageID string) error {
	return r.db.Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		Delete(&domain.Message{}).Error
}

func (r *messageRepository) FindByNativeID(accountID, providerMessageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) FindByID(id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Preload("Attachments").Where("id = ?", id).First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByAccount(accountID string, limit, offset int) ([]*domain.Message, int64, error) {
	var total int64
	if err := r.db.Model(&domain.Message{}).Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []*domain.Message
	err := r.db.Where("account_id = ?", accountID).
		Order("received_at DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	return msgs, total, err
}

func (r *messageRepository) CountByContentHash(accountID, contentHash string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).
		Where("account_id = ? AND content_hash = ?", accountID, contentHash).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) CountByAccount(accountID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

// DeleteByAccount hard-deletes all rows for a disconnected account. This is
// the explicit purge path; normal removal is the soft delete above.
func (r *messageRepository) DeleteByAccount(accountID string) error {
	if err := r.db.Unscoped().
		Where("message_id IN (?)", r.db.Unscoped().Model(&domain.Message{}).Select("id").Where("account_id = ?", accountID)).
		Delete(&domain.Attachment{}).Error; err != nil {
		return err
	}
	return r.db.Unscoped().Where("account_id = ?", accountID).Delete(&domain.Message{}).Error
}

func (r *messageRepository) CreateAttachment(att *domain.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	return r.db.Create(att).Error
}

func (r *messageRepository) UpdateAttachment(att *domain.Attachment) error {
	return r.db.Save(att).Error
}

func (r *messageRepository) AttachmentsByMessage(messageID string) ([]*domain.Attachment, error) {
	var atts []*domain.Attachment
	err := r.db.Where("message_id = ?", messageID).Find(&atts).Error
	return atts, err
}
